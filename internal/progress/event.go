// Package progress defines the event structures emitted during site crawls.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart   Stage = "CRAWL_START"
	StagePageFetched  Stage = "PAGE_FETCHED"
	StageItemIngested Stage = "ITEM_INGESTED"
	StageItemFailed   Stage = "ITEM_FAILED"
	StageCrawlDone    Stage = "CRAWL_DONE"
	StageCrawlError   Stage = "CRAWL_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for page fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone within a crawl run.
type Event struct {
	// RunID identifies the crawl run this event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Site names the pharmacy site being crawled.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// StatusClass groups HTTP response codes for PAGE_FETCHED events.
	StatusClass StatusClass
	// Dur captures execution latency for fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlDone, StageCrawlError:
		if e.Site == "" {
			return errors.New("crawl event requires site")
		}
	case StagePageFetched:
		if e.Site == "" {
			return errors.New("page fetch requires site")
		}
		if e.StatusClass == "" {
			return errors.New("page fetch requires status class")
		}
	case StageItemIngested, StageItemFailed:
		if e.URL == "" {
			return errors.New("item event requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for page fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
