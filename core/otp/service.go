package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
)

var (
	nowFunc = time.Now // mockable

	// ErrNoRecord is returned by a RecordStore when no verification record
	// exists for a target.
	ErrNoRecord = errors.New("no verification record")
)

// Outcome is the result of verifying a submitted code.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeInvalid
	OutcomeExpired
	OutcomeNoRequest
	OutcomeTooManyAttempts
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeExpired:
		return "expired"
	case OutcomeNoRequest:
		return "no_request"
	case OutcomeTooManyAttempts:
		return "too_many_attempts"
	}
	return "unknown"
}

// VerificationRecord is the pending state of a one-time code issued to a target.
type VerificationRecord struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
	Attempts int       `json:"attempts"`
}

type (
	// RecordStore persists verification records keyed by target (a phone
	// number or a wizard session ID). Implementations must NOT expire records
	// at the code TTL themselves: expiry is computed from IssuedAt so a stale
	// code reports "expired" rather than "no_request".
	RecordStore interface {
		SaveRecord(ctx context.Context, target string, rec VerificationRecord) error
		GetRecord(ctx context.Context, target string) (VerificationRecord, error)
		DeleteRecord(ctx context.Context, target string) error
		MarkVerified(ctx context.Context, target string) error
		IsVerified(ctx context.Context, target string) (bool, error)
	}

	ServiceInterface interface {
		Issue(ctx context.Context, target, phone string) (string, error)
		Verify(ctx context.Context, target, submitted string) (Outcome, error)
		IsVerified(ctx context.Context, target string) (bool, error)
	}

	service struct {
		store  RecordStore
		smsSvc core.SMSService
		conf   *core.Config
		logger core.Logger
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(store RecordStore, smsSvc core.SMSService, conf *core.Config, logger core.Logger) *service {
	return &service{
		store:  store,
		smsSvc: smsSvc,
		conf:   conf,
		logger: logger,
	}
}

// Issue generates a fresh zero-padded numeric code, persists it against target
// with a reset attempt counter and dispatches it to phone. Issuance is done
// once the record is persisted; SMS delivery is fire-and-forget.
// Re-issuing overwrites any prior pending code for the target.
func (svc *service) Issue(ctx context.Context, target, phone string) (string, error) {
	code, err := svc.generate()
	if err != nil {
		return "", errors.Wrap(err, "generating code")
	}

	rec := VerificationRecord{
		Code:     code,
		IssuedAt: nowFunc().UTC(),
	}
	if err := svc.store.SaveRecord(ctx, target, rec); err != nil {
		return "", errors.Wrap(err, "saving verification record")
	}

	go svc.smsSvc.Send(phone, fmt.Sprintf("%s verification code: %s", svc.conf.AppName, code))

	return code, nil
}

// Verify checks a submitted code against the pending record for target.
// The expiry check precedes the equality check: a stale-but-matching code
// still reports OutcomeExpired. The attempt counter increments only on
// mismatch; after OTP.MaxAttempts mismatches a fresh code must be issued.
func (svc *service) Verify(ctx context.Context, target, submitted string) (Outcome, error) {
	rec, err := svc.store.GetRecord(ctx, target)
	if err != nil {
		if errors.Cause(err) == ErrNoRecord {
			return OutcomeNoRequest, nil
		}
		return OutcomeInvalid, errors.Wrap(err, "getting verification record")
	}

	if nowFunc().UTC().Sub(rec.IssuedAt) > svc.conf.OTP.TTL {
		return OutcomeExpired, nil
	}

	if svc.conf.OTP.MaxAttempts > 0 && rec.Attempts >= svc.conf.OTP.MaxAttempts {
		return OutcomeTooManyAttempts, nil
	}

	if rec.Code != submitted {
		rec.Attempts++
		if err := svc.store.SaveRecord(ctx, target, rec); err != nil {
			return OutcomeInvalid, errors.Wrap(err, "saving verification record")
		}
		return OutcomeInvalid, nil
	}

	if err := svc.store.DeleteRecord(ctx, target); err != nil {
		return OutcomeInvalid, errors.Wrap(err, "clearing verification record")
	}
	if err := svc.store.MarkVerified(ctx, target); err != nil {
		return OutcomeInvalid, errors.Wrap(err, "marking target verified")
	}
	return OutcomeOK, nil
}

func (svc *service) IsVerified(ctx context.Context, target string) (bool, error) {
	return svc.store.IsVerified(ctx, target)
}

func (svc *service) generate() (string, error) {
	max := big.NewInt(int64(math.Pow10(svc.conf.OTP.Length)))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", svc.conf.OTP.Length, n), nil
}
