package probe

import (
	"fmt"

	"github.com/leozw/storefront-controlplane/internal/core"
)

type FailureKind string

const (
	KindTimeout   FailureKind = "timeout"
	KindTransport FailureKind = "transport"
	KindStatus    FailureKind = "status"
	KindDecode    FailureKind = "decode"
)

// Failure is a single probe call that did not produce metrics. It matches
// core.ErrProbeFailure.
type Failure struct {
	Source     core.ProbeSource
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s probe %s: %v", f.Source, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Is(target error) bool {
	return target == core.ErrProbeFailure
}
