// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sequencer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/skkn-master/pkg/types"
)

// ErrBusy is returned when Start or Advance is called while a response is
// still streaming.
var ErrBusy = errors.New("a generation is already in progress")

// errNoSession is wrapped in a TransportError when Advance finds no open
// session, which happens after a Start whose session setup failed.
var errNoSession = errors.New("no generation session; start a new draft")

// ConfigurationError reports a precondition failure detected before any
// session is created: required UserInfo fields are empty or the service has
// no usable credential.
type ConfigurationError struct {
	// Missing lists the empty UserInfo fields.
	Missing []string

	// Err is the service validation failure, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return "configuration error: missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError reports a failure of the generation service while opening
// a session or during a stream.
type TransportError struct {
	// Op is "start" or "advance".
	Op string

	// Step is the step whose content was being generated.
	Step types.GenerationStep

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("generation failed during %s (%s): %v", e.Op, e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
