// Package input holds the event sources a pipeline can run. Each
// subpackage implements ports.Input.
package input
