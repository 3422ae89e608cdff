package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/model"
	"github.com/rahlquantum/pairing-server-go/internal/store"
	"github.com/rahlquantum/pairing-server-go/internal/supervisor"
	"github.com/rahlquantum/pairing-server-go/internal/util"
)

const generateAttempts = 10

const warningNotDelivered = "Socket not ready; message not delivered"

type PairingResult struct {
	Code      string `json:"code"`
	ExpiresIn int    `json:"expiresIn"`
	Warning   string `json:"warning,omitempty"`
}

type VerifyResult struct {
	SessionID string `json:"sessionId"`
	Warning   string `json:"warning,omitempty"`
}

// Issuer orchestrates the pairing-code / session-token lifecycle: generate
// and store codes, verify them exactly once, mint session tokens, and notify
// the owner over the transport as a detached side effect.
type Issuer struct {
	codes           *store.PairingStore
	sup             *supervisor.Supervisor
	ttl             time.Duration
	deliveryTimeout time.Duration
}

func NewIssuer(codes *store.PairingStore, sup *supervisor.Supervisor, ttl, deliveryTimeout time.Duration) *Issuer {
	return &Issuer{
		codes:           codes,
		sup:             sup,
		ttl:             ttl,
		deliveryTimeout: deliveryTimeout,
	}
}

// RequestPairing validates the number, generates and stores a fresh code,
// and sends it to the owner best-effort. A delivery problem surfaces as a
// warning on the result, never as a failure; the code stays valid either
// way.
func (s *Issuer) RequestPairing(ctx context.Context, number string) (*PairingResult, error) {
	if number == "" {
		return nil, apperrors.MissingRequired("Phone number")
	}

	normalized, ok := util.NormalizeNumber(number)
	if !ok {
		return nil, apperrors.ValidationError("Invalid phone number")
	}

	code, err := s.generateAndStore(normalized)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("code", util.MaskCode(code)).
		Str("number", normalized).
		Msg("pairing code created")

	result := &PairingResult{
		Code:      code,
		ExpiresIn: int(s.ttl.Seconds()),
	}

	text := fmt.Sprintf("Rahl Quantum pairing code: %s. Use it in the portal within %d minutes.",
		code, int(s.ttl.Minutes()))
	result.Warning = s.deliver(normalized, text, "pairing_code")

	return result, nil
}

// Verify consumes the code and mints a session token exactly once. A second
// call with the same code fails: the store forgets the entry on first
// consume.
func (s *Issuer) Verify(ctx context.Context, code string) (*VerifyResult, error) {
	if code == "" {
		return nil, apperrors.MissingRequired("Code")
	}

	pc, err := s.codes.Consume(util.NormalizeCode(code))
	switch {
	case err == store.ErrCodeNotFound:
		log.Warn().Str("code", util.MaskCode(code)).Msg("invalid pairing code")
		return nil, apperrors.InvalidCode()
	case err == store.ErrCodeExpired:
		log.Warn().Str("code", util.MaskCode(code)).Msg("expired pairing code")
		return nil, apperrors.ExpiredCode()
	case err != nil:
		return nil, apperrors.Internal("Failed to verify code").WithCause(err)
	}

	sessionID, err := util.GenerateSessionID()
	if err != nil {
		return nil, apperrors.Internal("Failed to mint session token").WithCause(err)
	}

	token := model.SessionToken{
		ID:       sessionID,
		Number:   pc.Number,
		IssuedAt: time.Now(),
	}

	log.Info().
		Str("number", token.Number).
		Str("code", util.MaskCode(pc.Code)).
		Msg("session token minted")

	result := &VerifyResult{SessionID: token.ID}

	text := fmt.Sprintf("Your Rahl Quantum session ID:\n%s\nKeep it safe!", token.ID)
	result.Warning = s.deliver(token.Number, text, "session_token")

	return result, nil
}

func (s *Issuer) generateAndStore(number string) (string, error) {
	for attempt := 0; attempt < generateAttempts; attempt++ {
		code, err := util.GeneratePairingCode()
		if err != nil {
			return "", apperrors.Internal("Failed to generate code").WithCause(err)
		}

		err = s.codes.Put(code, number)
		if err == nil {
			return code, nil
		}
		if err != store.ErrDuplicateCode {
			return "", apperrors.Internal("Failed to store code").WithCause(err)
		}
		// collision with a live code; roll again
	}
	return "", apperrors.Internal("Could not generate a unique code")
}

// deliver sends text to the owner as a detached task. When the connection is
// not open the send is skipped up front and reported as a warning; once
// dispatched, failure is observed only in the logs.
func (s *Issuer) deliver(number, text, kind string) string {
	if s.sup.State() != model.StateOpen {
		log.Warn().Str("kind", kind).Str("number", number).Msg("owner notification skipped: socket not ready")
		return warningNotDelivered
	}

	deliveryID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.deliveryTimeout)
		defer cancel()

		if err := s.sup.SendMessage(ctx, number, text); err != nil {
			log.Warn().
				Err(err).
				Str("deliveryId", deliveryID).
				Str("kind", kind).
				Msg("owner notification failed")
			return
		}
		log.Debug().
			Str("deliveryId", deliveryID).
			Str("kind", kind).
			Msg("owner notification delivered")
	}()

	return ""
}
