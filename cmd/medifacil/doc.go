// Package main wires together the medication price service binary.
package main
