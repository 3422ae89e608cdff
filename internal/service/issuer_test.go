package service

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/model"
	"github.com/rahlquantum/pairing-server-go/internal/store"
	"github.com/rahlquantum/pairing-server-go/internal/supervisor"
	"github.com/rahlquantum/pairing-server-go/internal/transport"
	"github.com/rahlquantum/pairing-server-go/internal/util"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

type issuerFixture struct {
	issuer *Issuer
	codes  *store.PairingStore
	tr     *transport.Memory
	sup    *supervisor.Supervisor
}

type nullCreds struct{}

func (nullCreds) Save(ctx context.Context, blob []byte) error { return nil }
func (nullCreds) Load(ctx context.Context) ([]byte, error)    { return nil, nil }

func newIssuerFixture(t *testing.T, ttl time.Duration) *issuerFixture {
	t.Helper()
	tr := transport.NewMemory()
	sup := supervisor.New(tr, nullCreds{}, supervisor.Options{
		ReconnectDelay: 20 * time.Millisecond,
		StartTimeout:   time.Second,
	})
	t.Cleanup(sup.Shutdown)
	codes := store.NewPairingStore(ttl)
	return &issuerFixture{
		issuer: NewIssuer(codes, sup, ttl, time.Second),
		codes:  codes,
		tr:     tr,
		sup:    sup,
	}
}

// open drives the supervisor to an open connection so deliveries go out.
func (f *issuerFixture) open(t *testing.T) *transport.MemoryConn {
	t.Helper()
	require.NoError(t, f.sup.Start(context.Background(), transport.ModeQR, ""))
	conn := f.tr.LastConn()
	conn.EmitOpen()
	require.Eventually(t, func() bool {
		return f.sup.State() == model.StateOpen
	}, time.Second, 5*time.Millisecond)
	return conn
}

func TestRequestPairing(t *testing.T) {
	t.Run("issues a six digit code", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		result, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)
		assert.Regexp(t, codePattern, result.Code)
		assert.Equal(t, 300, result.ExpiresIn)
	})

	t.Run("warns when the socket is not open", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		result, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)
		assert.Equal(t, "Socket not ready; message not delivered", result.Warning)
	})

	t.Run("delivers the code to the owner when open", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)
		conn := f.open(t)

		result, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)
		assert.Empty(t, result.Warning)

		assert.Eventually(t, func() bool {
			sent := conn.Sent()
			return len(sent) == 1 &&
				sent[0].Number == "15551230001" &&
				strings.Contains(sent[0].Text, result.Code)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("normalizes formatted numbers", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)
		conn := f.open(t)

		_, err := f.issuer.RequestPairing(context.Background(), "+1 (555) 123-0001")
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			sent := conn.Sent()
			return len(sent) == 1 && sent[0].Number == "15551230001"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("missing number", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		_, err := f.issuer.RequestPairing(context.Background(), "")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, appErr.Code)
		assert.Equal(t, "Phone number required", appErr.Message)
	})

	t.Run("invalid number", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		_, err := f.issuer.RequestPairing(context.Background(), "not-a-number")
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestVerify(t *testing.T) {
	t.Run("mints a session token once", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		pairing, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)

		verified, err := f.issuer.Verify(context.Background(), pairing.Code)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(verified.SessionID, util.SessionIDPrefix))

		// the code is single use
		_, err = f.issuer.Verify(context.Background(), pairing.Code)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidCode, appErr.Code)
		assert.Equal(t, "Invalid or expired code", appErr.Message)
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		_, err := f.issuer.Verify(context.Background(), "000000")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidCode, appErr.Code)
		assert.Equal(t, "Invalid or expired code", appErr.Message)
	})

	t.Run("expired code", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		pairing, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)

		now := time.Now()
		f.codes.SetClock(func() time.Time { return now.Add(6 * time.Minute) })

		_, err = f.issuer.Verify(context.Background(), pairing.Code)
		assert.Equal(t, apperrors.ErrCodeExpiredCode, apperrors.GetCode(err))
	})

	t.Run("missing code", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		_, err := f.issuer.Verify(context.Background(), "")
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, appErr.Code)
		assert.Equal(t, "Code required", appErr.Message)
	})

	t.Run("tolerates surrounding whitespace", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		pairing, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)

		verified, err := f.issuer.Verify(context.Background(), "  "+pairing.Code+" ")
		require.NoError(t, err)
		assert.NotEmpty(t, verified.SessionID)
	})

	t.Run("sends the session id to the owner when open", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)
		conn := f.open(t)

		pairing, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)

		verified, err := f.issuer.Verify(context.Background(), pairing.Code)
		require.NoError(t, err)
		assert.Empty(t, verified.Warning)

		assert.Eventually(t, func() bool {
			for _, msg := range conn.Sent() {
				if strings.Contains(msg.Text, verified.SessionID) {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("verify succeeds with a warning when delivery is impossible", func(t *testing.T) {
		f := newIssuerFixture(t, 5*time.Minute)

		pairing, err := f.issuer.RequestPairing(context.Background(), "15551230001")
		require.NoError(t, err)

		verified, err := f.issuer.Verify(context.Background(), pairing.Code)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(verified.SessionID, util.SessionIDPrefix))
		assert.Equal(t, "Socket not ready; message not delivered", verified.Warning)
	})
}
