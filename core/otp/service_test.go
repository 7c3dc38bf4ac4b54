package otp

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/WebgateSystems/akademy/core"
)

type memStore struct {
	records  map[string]VerificationRecord
	verified map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		records:  make(map[string]VerificationRecord),
		verified: make(map[string]bool),
	}
}

func (s *memStore) SaveRecord(_ context.Context, target string, rec VerificationRecord) error {
	s.records[target] = rec
	return nil
}

func (s *memStore) GetRecord(_ context.Context, target string) (VerificationRecord, error) {
	rec, ok := s.records[target]
	if !ok {
		return VerificationRecord{}, ErrNoRecord
	}
	return rec, nil
}

func (s *memStore) DeleteRecord(_ context.Context, target string) error {
	delete(s.records, target)
	return nil
}

func (s *memStore) MarkVerified(_ context.Context, target string) error {
	s.verified[target] = true
	return nil
}

func (s *memStore) IsVerified(_ context.Context, target string) (bool, error) {
	return s.verified[target], nil
}

type smsRecorder struct {
	ch chan string
}

func (r *smsRecorder) Send(_, body string) { r.ch <- body }

func (r *smsRecorder) await(t *testing.T) string {
	t.Helper()
	select {
	case body := <-r.ch:
		return body
	case <-time.After(2 * time.Second):
		t.Fatal("no SMS sent")
		return ""
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func setup(maxAttempts int) (*service, *memStore, *smsRecorder) {
	conf := &core.Config{
		AppName: "Akademy",
		OTP: core.OTPConfig{
			Length:      4,
			TTL:         5 * time.Minute,
			MaxAttempts: maxAttempts,
		},
	}
	store := newMemStore()
	sms := &smsRecorder{ch: make(chan string, 10)}
	return NewService(store, sms, conf, nopLogger{}), store, sms
}

func Test_service_Issue(t *testing.T) {
	svc, store, sms := setup(5)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "sess1", "+48500100200")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !regexp.MustCompile(`^\d{4}$`).MatchString(code) {
		t.Errorf("Issue() code = %q; want 4 digits", code)
	}

	rec, err := store.GetRecord(ctx, "sess1")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Code != code {
		t.Errorf("stored code = %q; want %q", rec.Code, code)
	}
	if rec.Attempts != 0 {
		t.Errorf("stored attempts = %d; want 0", rec.Attempts)
	}

	body := sms.await(t)
	want := "Akademy verification code: " + code
	if body != want {
		t.Errorf("SMS body = %q; want %q", body, want)
	}

	// re-issue overwrites the pending code and resets attempts
	rec.Attempts = 3
	_ = store.SaveRecord(ctx, "sess1", rec)
	code2, err := svc.Issue(ctx, "sess1", "+48500100200")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	rec, _ = store.GetRecord(ctx, "sess1")
	if rec.Code != code2 || rec.Attempts != 0 {
		t.Errorf("re-issue: record = %+v; want code %q, attempts 0", rec, code2)
	}
	sms.await(t)
}

func Test_service_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending request", func(t *testing.T) {
		svc, _, _ := setup(5)
		outcome, err := svc.Verify(ctx, "sess1", "1234")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeNoRequest {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeNoRequest)
		}
	})

	t.Run("expired code wins over equality", func(t *testing.T) {
		svc, store, _ := setup(5)
		rec := VerificationRecord{Code: "1234", IssuedAt: time.Now().UTC().Add(-10 * time.Minute)}
		_ = store.SaveRecord(ctx, "sess1", rec)

		outcome, err := svc.Verify(ctx, "sess1", "1234")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeExpired {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeExpired)
		}
	})

	t.Run("mismatch increments attempts", func(t *testing.T) {
		svc, store, sms := setup(5)
		code, err := svc.Issue(ctx, "sess1", "+48500100200")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		sms.await(t)

		wrong := "0000"
		if wrong == code {
			wrong = "0001"
		}
		outcome, err := svc.Verify(ctx, "sess1", wrong)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeInvalid {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeInvalid)
		}
		rec, _ := store.GetRecord(ctx, "sess1")
		if rec.Attempts != 1 {
			t.Errorf("attempts = %d; want 1", rec.Attempts)
		}

		// a match does not increment; it clears the record and marks verified
		outcome, err = svc.Verify(ctx, "sess1", code)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeOK {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeOK)
		}
		if _, err := store.GetRecord(ctx, "sess1"); err != ErrNoRecord {
			t.Errorf("GetRecord() error = %v; want %v", err, ErrNoRecord)
		}
		ok, err := svc.IsVerified(ctx, "sess1")
		if err != nil {
			t.Fatalf("IsVerified() error = %v", err)
		}
		if !ok {
			t.Error("IsVerified() = false; want true")
		}
	})

	t.Run("locked out after max attempts", func(t *testing.T) {
		svc, _, sms := setup(3)
		code, err := svc.Issue(ctx, "sess1", "+48500100200")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		sms.await(t)

		wrong := "0000"
		if wrong == code {
			wrong = "0001"
		}
		for i := 0; i < 3; i++ {
			outcome, err := svc.Verify(ctx, "sess1", wrong)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if outcome != OutcomeInvalid {
				t.Fatalf("attempt %d: outcome = %v; want %v", i+1, outcome, OutcomeInvalid)
			}
		}

		// even the right code is rejected now
		outcome, err := svc.Verify(ctx, "sess1", code)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeTooManyAttempts {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeTooManyAttempts)
		}

		// a fresh code unlocks the target
		code, err = svc.Issue(ctx, "sess1", "+48500100200")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		sms.await(t)
		outcome, err = svc.Verify(ctx, "sess1", code)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if outcome != OutcomeOK {
			t.Errorf("outcome = %v; want %v", outcome, OutcomeOK)
		}
	})
}
