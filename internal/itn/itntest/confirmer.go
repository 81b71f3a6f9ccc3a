// Package itntest provides deterministic doubles for the notification pipeline.
package itntest

import (
	"context"
	"sync/atomic"

	"github.com/frahmantamala/payfast-itn/internal/itn"
)

type Answer int

const (
	AnswerValid Answer = iota
	AnswerInvalid
	// AnswerTimeout blocks until the caller's context expires.
	AnswerTimeout
	// AnswerGarbage simulates an unrecognised token.
	AnswerGarbage
)

// StubConfirmer answers every confirmation with a fixed outcome.
type StubConfirmer struct {
	Answer Answer

	calls    atomic.Int32
	lastBody atomic.Value
}

func NewStubConfirmer(answer Answer) *StubConfirmer {
	return &StubConfirmer{Answer: answer}
}

func (s *StubConfirmer) Confirm(ctx context.Context, rawBody []byte) itn.CheckResult {
	s.calls.Add(1)
	s.lastBody.Store(string(rawBody))

	switch s.Answer {
	case AnswerValid:
		return itn.InterpretToken([]byte("VALID"))
	case AnswerInvalid:
		return itn.InterpretToken([]byte("INVALID"))
	case AnswerTimeout:
		<-ctx.Done()
		return itn.CheckResult{
			Check:  itn.CheckAuthority,
			Status: itn.CheckInconclusive,
			Detail: "gateway validation timed out: " + ctx.Err().Error(),
		}
	default:
		return itn.InterpretToken([]byte("<html>maintenance</html>"))
	}
}

func (s *StubConfirmer) Calls() int {
	return int(s.calls.Load())
}

// LastBody returns the last body the stub was asked to confirm.
func (s *StubConfirmer) LastBody() string {
	v, _ := s.lastBody.Load().(string)
	return v
}
