package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefeedback/qrverify/internal/common"
	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/config"
	"github.com/storefeedback/qrverify/internal/server/events"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/repositories/repomanager"
	"github.com/storefeedback/qrverify/internal/server/validation"
)

const publishTimeout = 5 * time.Second

var storeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// FraudGate is the part of the fraud detector the coordinator depends on.
type FraudGate interface {
	CheckAndLog(ctx context.Context, a Attempt) FraudVerdict
}

// ScanRequest carries the raw QR parameters of a scan.
type ScanRequest struct {
	StoreID   string
	QRVersion string
	Timestamp string
	Client    ClientInfo
}

// ScanResult bootstraps the customer's session.
type ScanResult struct {
	SessionToken string
	StoreInfo    models.StoreInfo
	FraudWarning bool
	ExpiresAt    time.Time
}

// Submission is the customer's claim as received. TransactionAmount may be a
// number or a loosely formatted string.
type Submission struct {
	TransactionTime   string
	TransactionAmount any
	PhoneNumber       string
}

// ExpectedTransaction is the store's side of the match.
type ExpectedTransaction struct {
	Time   time.Time
	Amount decimal.Decimal
}

// SubmissionResult reports the verdict of a processed submission. A claim that
// fails validation is still a successful operation.
type SubmissionResult struct {
	VerificationID string
	Status         models.SessionStatus
	Results        models.ValidationResults
	NextSteps      string
}

// SessionDetails is the read-only view of a session for the customer UI.
type SessionDetails struct {
	Session *models.Session
	Store   models.StoreInfo
	Hints   validation.Hints
}

// Coordinator runs the scan and submission flows on top of the fraud gate,
// the session manager and the persistence gateway.
type Coordinator struct {
	repos     repomanager.RepositoryManager
	sessions  *SessionManager
	fraud     FraudGate
	publisher events.Publisher
	log       logging.Logger

	qrMaxAge     time.Duration
	qrClockSkew  time.Duration
	lookupWindow time.Duration
	loc          *time.Location
	now          func() time.Time
}

func NewCoordinator(repos repomanager.RepositoryManager, sessions *SessionManager, fraud FraudGate,
	publisher events.Publisher, cfg *config.Config, log logging.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Coordinator{
		repos:        repos,
		sessions:     sessions,
		fraud:        fraud,
		publisher:    publisher,
		log:          log.With("module", "coordinator"),
		qrMaxAge:     cfg.QRMaxAge,
		qrClockSkew:  cfg.QRClockSkew,
		lookupWindow: cfg.TransactionLookupWindow,
		loc:          cfg.Location(),
		now:          time.Now,
	}
}

// HandleScan validates the QR parameters, gates the attempt and opens a session.
func (c *Coordinator) HandleScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if !storeIDPattern.MatchString(req.StoreID) {
		return nil, common.ErrInvalidStoreID
	}
	version, err := c.checkQRParams(req.QRVersion, req.Timestamp)
	if err != nil {
		return nil, err
	}

	verdict := c.fraud.CheckAndLog(ctx, Attempt{StoreID: req.StoreID, Kind: models.AttemptScan, Client: req.Client})
	if err := verdictError(verdict); err != nil {
		return nil, err
	}

	store, err := c.repos.Stores().GetByID(ctx, req.StoreID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	if version < store.QRVersion {
		return nil, common.ErrQRCodeExpired.WithMessage("this QR code has been replaced; scan the code currently on display")
	}
	if version > store.QRVersion {
		return nil, common.ErrInvalidQRParams.WithMessage("unknown QR code version")
	}

	s, err := c.sessions.Create(ctx, store, version, req.Client, verdict)
	if err != nil {
		return nil, err
	}
	return &ScanResult{
		SessionToken: s.Token,
		StoreInfo:    store.Info(),
		FraudWarning: s.FraudWarning,
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

func (c *Coordinator) checkQRParams(rawVersion, rawTimestamp string) (int, error) {
	if rawVersion == "" || rawTimestamp == "" {
		return 0, common.ErrInvalidQRParams.WithMessage("QR parameters v and t are required")
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version <= 0 {
		return 0, common.ErrInvalidQRParams.WithMessage("QR version must be a positive integer")
	}
	unix, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil || unix <= 0 {
		return 0, common.ErrInvalidQRParams.WithMessage("QR timestamp must be a Unix timestamp")
	}

	now := c.now()
	issued := time.Unix(unix, 0)
	if issued.After(now.Add(c.qrClockSkew)) {
		return 0, common.ErrInvalidQRParams.WithMessage("QR timestamp is in the future")
	}
	if now.Sub(issued) > c.qrMaxAge {
		return 0, common.ErrQRCodeExpired
	}
	return version, nil
}

// HandleSubmission validates a claim against the expected transaction and
// finalizes the session. When expected is nil the store's POS transaction
// closest to the claimed time is used.
func (c *Coordinator) HandleSubmission(ctx context.Context, token string, sub Submission, expected *ExpectedTransaction, client ClientInfo) (*SubmissionResult, error) {
	session, err := c.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	verdict := c.fraud.CheckAndLog(ctx, Attempt{StoreID: session.StoreID, Kind: models.AttemptSubmit, Client: client, SessionToken: token})
	if err := verdictError(verdict); err != nil {
		return nil, err
	}

	// A replayed submission finds its session already finalized; report the
	// duplicate rather than the state.
	exists, err := c.repos.Verifications().ExistsForSession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing verification: %w", err)
	}
	if exists {
		return nil, common.ErrVerificationAlreadyExists
	}
	if err := requirePending(session); err != nil {
		return nil, err
	}

	now := c.now()
	if expected == nil {
		if expected, err = c.expectedFor(ctx, session.StoreID, sub.TransactionTime, now); err != nil {
			return nil, err
		}
	}

	results := validation.Combine(
		validation.ValidateClockTime(sub.TransactionTime, now, expected.Time, c.loc),
		validation.ValidateAmount(sub.TransactionAmount, expected.Amount),
		validation.ValidatePhone(sub.PhoneNumber),
	)
	status := models.SessionFailed
	if results.OverallValid {
		status = models.SessionCompleted
	}

	v := &models.Verification{
		ID:                uuid.NewString(),
		SessionID:         session.ID,
		StoreID:           session.StoreID,
		TransactionTime:   results.Time.Actual,
		TransactionAmount: results.Amount.Actual,
		PhoneRaw:          sub.PhoneNumber,
		PhoneE164:         results.Phone.E164,
		PhoneNational:     results.Phone.National,
		Status:            status,
		Results:           results,
		SubmittedAt:       now,
	}

	err = c.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		if err := repos.Verifications().Create(ctx, v); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.ErrVerificationAlreadyExists
			}
			return fmt.Errorf("save verification: %w", err)
		}
		changed, err := c.sessions.transition(ctx, repos.Sessions(), session, status)
		if err != nil {
			return err
		}
		if !changed {
			if session.Status == models.SessionExpired {
				return common.ErrSessionExpired
			}
			return common.ErrSessionInvalidState.WithMessage("session changed while the submission was processed")
		}
		return nil
	})
	if errors.Is(err, common.ErrSessionExpired) {
		// the unit of work was rolled back; persist the expiry on its own
		if _, terr := c.repos.Sessions().Transition(ctx, session.ID, models.SessionPending, models.SessionExpired, c.now()); terr != nil {
			c.log.Warn(ctx, "lazy expiry write failed", "session_id", session.ID, "error", terr)
		}
	}
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "verification recorded",
		"verification_id", v.ID, "session_id", session.ID, "store_id", session.StoreID, "overall_valid", results.OverallValid)

	if results.OverallValid {
		c.publish(ctx, session, v)
	}

	return &SubmissionResult{
		VerificationID: v.ID,
		Status:         status,
		Results:        results,
		NextSteps:      nextSteps(results),
	}, nil
}

func (c *Coordinator) expectedFor(ctx context.Context, storeID, claimedTime string, now time.Time) (*ExpectedTransaction, error) {
	anchor := now
	if at, err := validation.ParseClockTime(claimedTime, now, c.loc); err == nil {
		anchor = at
	}

	tx, err := c.repos.Transactions().FindClosest(ctx, storeID, anchor, c.lookupWindow)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &ExpectedTransaction{Time: tx.Time, Amount: tx.Amount}, nil
}

func (c *Coordinator) publish(ctx context.Context, session *models.Session, v *models.Verification) {
	ev := events.VerificationFinalized{
		VerificationID: v.ID,
		SessionID:      session.ID,
		StoreID:        session.StoreID,
		PhoneE164:      v.PhoneE164,
		FraudWarning:   session.FraudWarning,
		RiskScore:      session.RiskScore,
		FinalizedAt:    v.SubmittedAt,
	}
	if v.TransactionTime != nil {
		ev.TransactionTime = *v.TransactionTime
	}
	if v.TransactionAmount != nil {
		ev.TransactionAmount = v.TransactionAmount.StringFixed(2)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.log.Warn(ctx, "publishing finalized verification failed", "verification_id", v.ID, "error", err)
	}
}

// GetVerification returns a recorded verification by id.
func (c *Coordinator) GetVerification(ctx context.Context, id string) (*models.Verification, error) {
	v, err := c.repos.Verifications().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrVerificationNotFound
		}
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

// SessionDetails returns a pending or completed session with its store and the
// tolerance hints. Failed sessions are not readable.
func (c *Coordinator) SessionDetails(ctx context.Context, token string) (*SessionDetails, error) {
	s, err := c.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionPending && s.Status != models.SessionCompleted {
		return nil, common.ErrSessionInvalidState.WithMessage(fmt.Sprintf("session is %s", s.Status))
	}

	store, err := c.repos.Stores().GetByID(ctx, s.StoreID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrStoreNotFound
		}
		return nil, fmt.Errorf("get store: %w", err)
	}
	return &SessionDetails{Session: s, Store: store.Info(), Hints: validation.ToleranceHints()}, nil
}

func verdictError(v FraudVerdict) error {
	switch {
	case v.Allowed:
		return nil
	case v.RateLimit.Blocked:
		return common.ErrRateLimitExceeded.WithRetryAfter(v.RateLimit.RetryAfter)
	default:
		return common.ErrFraudDetectionBlocked
	}
}

func nextSteps(r models.ValidationResults) string {
	if r.OverallValid {
		return "Your purchase is verified. We will call " + r.Phone.National + " shortly to collect your feedback."
	}

	var problems []string
	if !r.Time.Status.OK() {
		problems = append(problems, "the purchase time")
	}
	if !r.Amount.Status.OK() {
		problems = append(problems, "the amount")
	}
	if !r.Phone.Status.OK() {
		problems = append(problems, "the phone number")
	}
	return "We could not verify " + strings.Join(problems, " and ") +
		". Check your receipt and scan the store's QR code again to retry."
}
