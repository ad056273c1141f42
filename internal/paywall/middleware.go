// Package paywall implements HTTP 402 Payment Required middleware for the
// analysis endpoints. A caller without a proof gets a payment requirement
// with a one-time nonce; a caller presenting a proof of an on-chain USDC
// transfer is let through once per transaction. The transfer must have been
// mined after its nonce was issued, so a payment cannot be redeemed again
// once the record of it has aged out.
package paywall

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tokensafe/internal/logging"
	"github.com/mbd888/tokensafe/internal/metrics"
)

var (
	ErrMissingField   = errors.New("paywall: missing proof field")
	ErrInvalidNonce   = errors.New("paywall: invalid or expired nonce")
	ErrStaleProof     = errors.New("paywall: payment proof expired or has future timestamp")
	ErrMalformedProof = errors.New("paywall: malformed payment proof")
	ErrTxAlreadyUsed  = errors.New("paywall: transaction already used")
	ErrStalePayment   = errors.New("paywall: transaction predates the payment request")
	ErrUnderpaid      = errors.New("paywall: payment amount insufficient")
	ErrVerifyFailed   = errors.New("paywall: verification failed")
)

const (
	// DefaultValidFor is how long an issued nonce stays redeemable.
	DefaultValidFor = 5 * time.Minute

	// usedTxRetention bounds how long a redeemed tx hash is remembered.
	usedTxRetention = 24 * time.Hour

	// clockSkew tolerated on proof timestamps from the future and on block
	// timestamps lagging the nonce issue time.
	clockSkew = 30 * time.Second

	contextKeyProof  = "payment_proof"
	contextKeyAmount = "payment_amount"
)

var (
	txHashRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// seenSet remembers keys for a bounded time.
type seenSet struct {
	mu   sync.Mutex
	keys map[string]time.Time // key → recorded-at
	ttl  time.Duration
	now  func() time.Time
}

func newSeenSet(ttl time.Duration, now func() time.Time) *seenSet {
	return &seenSet{keys: make(map[string]time.Time), ttl: ttl, now: now}
}

// add records key and purges expired entries.
func (s *seenSet) add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.keys[key] = now
	cutoff := now.Add(-s.ttl)
	for k, t := range s.keys {
		if t.Before(cutoff) {
			delete(s.keys, k)
		}
	}
}

// take removes key and reports when it was recorded and whether it was
// present and unexpired.
func (s *seenSet) take(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.keys[key]
	if !ok {
		return time.Time{}, false
	}
	delete(s.keys, key) // One-time use
	return at, s.now().Sub(at) <= s.ttl
}

// addIfAbsent records key unless it is already present. Returns false when
// it was present.
func (s *seenSet) addIfAbsent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.keys[key]; ok && s.now().Sub(at) <= s.ttl {
		return false
	}
	s.keys[key] = s.now()
	return true
}

// remove forgets key.
func (s *seenSet) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// PaymentRequirement describes what payment is needed
// This is returned in the 402 response body
type PaymentRequirement struct {
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Chain       string `json:"chain"`
	ChainID     int64  `json:"chainId"`
	Recipient   string `json:"recipient"`
	Contract    string `json:"contract"`
	Description string `json:"description,omitempty"`
	ValidFor    int64  `json:"validFor,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

// PaymentProof is sent by the client to prove payment was made
type PaymentProof struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Verifier Interface (dependency inversion)
// -----------------------------------------------------------------------------

// Verifier checks a payment on-chain. wallet.Verifier implements it.
// minedAt is the timestamp of the block that included txHash.
type Verifier interface {
	Address() string
	VerifyPayment(ctx context.Context, from string, minAmount string, txHash string) (ok bool, minedAt time.Time, err error)
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config for the paywall
type Config struct {
	Verifier Verifier

	// Payment settings
	DefaultPrice string
	Chain        string
	ChainID      int64
	Contract     string

	// ValidFor is how long a nonce may be redeemed after issue.
	ValidFor time.Duration

	// Hooks
	OnPaymentReceived func(proof *PaymentProof, route string)
	OnPaymentFailed   func(proof *PaymentProof, err error)
}

// Gate issues nonces and verifies proofs. Nonces and redeemed transactions
// are tracked per Gate; it is safe for concurrent use.
type Gate struct {
	cfg    Config
	nonces *seenSet
	usedTx *seenSet
	now    func() time.Time
}

// New creates a payment gate.
func New(cfg Config) *Gate {
	if cfg.ValidFor <= 0 {
		cfg.ValidFor = DefaultValidFor
	}
	g := &Gate{cfg: cfg, now: time.Now}
	clock := func() time.Time { return g.now() }
	g.nonces = newSeenSet(cfg.ValidFor, clock)
	g.usedTx = newSeenSet(usedTxRetention, clock)
	return g
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

// Middleware requires payment of the default price
func (g *Gate) Middleware() gin.HandlerFunc {
	return g.MiddlewareWithPrice(g.cfg.DefaultPrice, "Token safety analysis")
}

// MiddlewareWithPrice creates a middleware with a specific price and description
func (g *Gate) MiddlewareWithPrice(price string, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proofHeader := c.GetHeader("X-Payment-Proof")

		// Also check for x402 standard header
		if proofHeader == "" {
			proofHeader = c.GetHeader("X-402-Payment")
		}

		if proofHeader == "" {
			metrics.PaymentsTotal.WithLabelValues("required").Inc()
			g.returnPaymentRequired(c, price, description)
			return
		}

		var proof PaymentProof
		if err := json.Unmarshal([]byte(proofHeader), &proof); err != nil {
			metrics.PaymentsTotal.WithLabelValues("invalid").Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_payment_proof",
				"message": "Could not parse payment proof JSON",
			})
			return
		}

		if err := g.verify(c.Request.Context(), &proof, price); err != nil {
			g.fail(c, &proof, err)
			return
		}

		metrics.PaymentsTotal.WithLabelValues("verified").Inc()
		logging.L(c.Request.Context()).Info("payment verified",
			"tx_hash", proof.TxHash,
			"from", proof.From,
			"amount", price,
			"route", c.FullPath(),
		)
		if g.cfg.OnPaymentReceived != nil {
			g.cfg.OnPaymentReceived(&proof, c.FullPath())
		}

		c.Set(contextKeyProof, &proof)
		c.Set(contextKeyAmount, price)
		c.Next()
	}
}

func (g *Gate) fail(c *gin.Context, proof *PaymentProof, err error) {
	logging.L(c.Request.Context()).Warn("payment rejected",
		"tx_hash", proof.TxHash,
		"from", proof.From,
		"error", err,
	)
	if g.cfg.OnPaymentFailed != nil {
		g.cfg.OnPaymentFailed(proof, err)
	}

	switch {
	case errors.Is(err, ErrUnderpaid):
		metrics.PaymentsTotal.WithLabelValues("insufficient").Inc()
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_insufficient",
			"message": "Payment amount was less than required",
		})
	case errors.Is(err, ErrStalePayment):
		metrics.PaymentsTotal.WithLabelValues("stale").Inc()
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_stale",
			"message": "Transaction was mined before this payment was requested",
		})
	case errors.Is(err, ErrTxAlreadyUsed):
		metrics.PaymentsTotal.WithLabelValues("replayed").Inc()
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_already_used",
			"message": "This transaction has already paid for a request",
		})
	default:
		metrics.PaymentsTotal.WithLabelValues("failed").Inc()
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error":   "payment_verification_failed",
			"message": "Payment verification failed",
		})
	}
}

func (g *Gate) returnPaymentRequired(c *gin.Context, price string, description string) {
	nonce, err := generateSecureNonce()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to generate secure nonce",
		})
		return
	}

	g.nonces.add(nonce)

	recipient := g.cfg.Verifier.Address()
	req := PaymentRequirement{
		Price:       price,
		Currency:    "USDC",
		Chain:       g.cfg.Chain,
		ChainID:     g.cfg.ChainID,
		Recipient:   recipient,
		Contract:    g.cfg.Contract,
		Description: description,
		ValidFor:    int64(g.cfg.ValidFor.Seconds()),
		Nonce:       nonce,
	}

	c.Header("X-Payment-Required", "true")
	c.Header("X-Payment-Currency", "USDC")
	c.Header("X-Payment-Amount", price)
	c.Header("X-Payment-Recipient", recipient)
	c.Header("X-Payment-Chain", g.cfg.Chain)

	c.AbortWithStatusJSON(http.StatusPaymentRequired, req)
}

// verify checks the proof's shape and freshness locally, then on-chain.
// A transaction hash is claimed before the on-chain check and released
// again if the check does not pass.
func (g *Gate) verify(ctx context.Context, proof *PaymentProof, price string) error {
	if proof.TxHash == "" {
		return fmt.Errorf("%w: txHash", ErrMissingField)
	}
	if proof.From == "" {
		return fmt.Errorf("%w: from", ErrMissingField)
	}
	if proof.Nonce == "" {
		return fmt.Errorf("%w: nonce", ErrMissingField)
	}

	txHash := strings.ToLower(proof.TxHash)
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}
	if !txHashRe.MatchString(txHash) {
		return fmt.Errorf("%w: transaction hash", ErrMalformedProof)
	}
	if !addressRe.MatchString(proof.From) {
		return fmt.Errorf("%w: sender address", ErrMalformedProof)
	}

	if proof.Timestamp > 0 {
		age := g.now().Sub(time.Unix(proof.Timestamp, 0))
		if age > g.cfg.ValidFor || age < -clockSkew {
			return ErrStaleProof
		}
	}

	issuedAt, ok := g.nonces.take(proof.Nonce)
	if !ok {
		return ErrInvalidNonce
	}
	if !g.usedTx.addIfAbsent(txHash) {
		return ErrTxAlreadyUsed
	}

	paid, minedAt, err := g.cfg.Verifier.VerifyPayment(ctx, proof.From, price, txHash)
	if err != nil {
		g.usedTx.remove(txHash)
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	if !paid {
		g.usedTx.remove(txHash)
		return ErrUnderpaid
	}
	// The hash stays claimed: the transfer is real but already spent.
	if minedAt.IsZero() || minedAt.Before(issuedAt.Add(-clockSkew)) {
		return ErrStalePayment
	}
	return nil
}

// generateSecureNonce creates a cryptographically secure nonce
func generateSecureNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GetPaymentProof retrieves the payment proof from the gin context
func GetPaymentProof(c *gin.Context) *PaymentProof {
	if proof, exists := c.Get(contextKeyProof); exists {
		return proof.(*PaymentProof)
	}
	return nil
}
