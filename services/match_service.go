package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"pairly-chat-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAlreadyChatting = errors.New("user is already in a chat")
	ErrNotReady        = errors.New("user cannot search from the current state")
	ErrNoOpenSession   = errors.New("user has no open session")

	// errPairConflict aborts a pairing transaction when a participant was
	// grabbed by a concurrent scan or cancelled mid-flight. Expected, not a
	// fault: the caller moves on to the next candidate.
	errPairConflict = errors.New("pairing precondition lost")
)

// MatchService owns the four atomic protocols: pairing, teardown, and the
// user-state cycle around them. It is the only writer for
// IDLE → SEARCHING → CHATTING and the reverse teardown path.
type MatchService struct {
	DB      *gorm.DB
	Users   *UserService
	Pool    *PoolService
	Ratings *RatingService

	// HistoryWindow is how long a matched pair stays mutually excluded.
	HistoryWindow time.Duration
}

func NewMatchService(db *gorm.DB, users *UserService, pool *PoolService, ratings *RatingService, historyWindow time.Duration) *MatchService {
	return &MatchService{
		DB:            db,
		Users:         users,
		Pool:          pool,
		Ratings:       ratings,
		HistoryWindow: historyWindow,
	}
}

// RequestMatch enters the user into the waiting pool and runs one selection
// pass. It returns the matched partner, or nil when the user stays enqueued.
// There is no background matcher: the next pass happens on the next join.
func (s *MatchService) RequestMatch(userID int64, genderPref *string) (*int64, error) {
	user, err := s.Users.Get(userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.Users.Transition(userID, models.StateIdle, models.StateSearching)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Re-read and decide; the failed CAS is the signal, not an error.
		state, err := s.Users.State(userID)
		if err != nil {
			return nil, err
		}
		switch state {
		case models.StateSearching:
			// Already searching; refresh the pool entry below and keep the
			// activity stamp current so the stale-search sweep skips them.
			if err := s.Users.TouchActivity(userID); err != nil {
				return nil, err
			}
		case models.StateChatting:
			return nil, ErrAlreadyChatting
		default:
			return nil, ErrNotReady
		}
	}

	now := time.Now()
	avg, count, err := s.Ratings.Average(userID)
	if err != nil {
		return nil, err
	}
	entry := models.WaitingEntry{
		UserID:      userID,
		Gender:      user.Gender,
		Premium:     user.PremiumActive(now),
		RatingCount: count,
		GenderPref:  genderPref,
		JoinedAt:    now,
	}
	if count > 0 {
		entry.RatingAvg = &avg
	}
	if err := s.Pool.Join(entry); err != nil {
		return nil, err
	}

	cutoff := now.Add(-s.HistoryWindow)
	candidates, err := s.Pool.Candidates(userID, cutoff)
	if err != nil {
		return nil, err
	}

	eligible := candidates[:0]
	for _, cand := range candidates {
		if mutuallyCompatible(entry, cand) {
			eligible = append(eligible, cand)
		}
	}
	rankCandidates(eligible)

	for _, cand := range eligible {
		err := s.pair(userID, cand.UserID)
		if err == nil {
			partnerID := cand.UserID
			return &partnerID, nil
		}
		if errors.Is(err, errPairConflict) {
			// Candidate was taken or cancelled; try the next one.
			continue
		}
		return nil, err
	}

	// No eligible candidate: the user stays pooled until another join scans.
	return nil, nil
}

// mutuallyCompatible applies the gender-preference filter in both directions.
func mutuallyCompatible(requester, candidate models.WaitingEntry) bool {
	if candidate.GenderPref != nil && *candidate.GenderPref != requester.Gender {
		return false
	}
	if requester.GenderPref != nil && *requester.GenderPref != candidate.Gender {
		return false
	}
	return true
}

// rankCandidates orders the eligible list by the selection policy: premium
// first, then higher average rating (unrated ranks lowest), then earlier join,
// then user ID as the final total-order tie-break. This comparator is the
// single place the policy lives.
func rankCandidates(entries []models.WaitingEntry) {
	ratingOf := func(e models.WaitingEntry) float64 {
		if e.RatingAvg == nil || e.RatingCount == 0 {
			return 0
		}
		return *e.RatingAvg
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Premium != b.Premium {
			return a.Premium
		}
		if ra, rb := ratingOf(a), ratingOf(b); ra != rb {
			return ra > rb
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
}

// pair runs the atomic pairing protocol for requester r and candidate c:
// both pool rows deleted, one session created, both users conditionally moved
// to CHATTING with partner refs set, symmetric history rows written, and the
// match notifications enqueued. Any step failing rolls back everything.
func (s *MatchService) pair(r, c int64) error {
	now := time.Now()
	session := models.ChatSession{
		ID:        uuid.NewString(),
		UserA:     r,
		UserB:     c,
		StartedAt: now,
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		// Both sides must still be pooled; a cancel that committed first
		// makes the delete miss and the pairing fails cleanly. The requester
		// needs the same check as the candidate: their own cancel can land
		// between the pool scan and this transaction.
		for _, userID := range []int64{c, r} {
			res := tx.Where("user_id = ?", userID).Delete(&models.WaitingEntry{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errPairConflict
			}
		}

		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		// Conditional transitions are the race detector: if either user's
		// state already changed (matched by a concurrent scan, stopped), the
		// update hits zero rows and the whole transaction rolls back.
		for _, side := range [2][2]int64{{r, c}, {c, r}} {
			userID, partnerID := side[0], side[1]
			res := tx.Model(&models.User{}).
				Where("id = ? AND state IN ?", userID, []string{models.StateIdle, models.StateSearching}).
				Updates(map[string]interface{}{
					"state":       models.StateChatting,
					"partner_id":  partnerID,
					"last_active": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errPairConflict
			}
		}

		history := []models.MatchHistory{
			{UserID: r, PartnerID: c, LastMatchedAt: now},
			{UserID: c, PartnerID: r, LastMatchedAt: now},
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "partner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_matched_at"}),
		}).Create(&history).Error
		if err != nil {
			return err
		}

		return enqueueMatchNotifications(tx, session)
	})
}

func enqueueMatchNotifications(tx *gorm.DB, session models.ChatSession) error {
	for _, side := range [2][2]int64{{session.UserA, session.UserB}, {session.UserB, session.UserA}} {
		payload, err := json.Marshal(map[string]interface{}{
			"partner_id": side[1],
			"session_id": session.ID,
		})
		if err != nil {
			return err
		}
		note := models.Notification{
			UserID:  side[0],
			Kind:    models.NotifyMatchFound,
			Payload: string(payload),
		}
		if err := tx.Create(&note).Error; err != nil {
			return err
		}
	}
	return nil
}

// CancelSearch removes the user from the pool and returns them to IDLE. It
// reports whether a pool entry was actually removed; racing against an
// in-flight pairing is safe either way (see Pool.Leave).
func (s *MatchService) CancelSearch(userID int64) (bool, error) {
	removed, err := s.Pool.Leave(userID)
	if err != nil {
		return false, err
	}
	if _, err := s.Users.Transition(userID, models.StateSearching, models.StateIdle); err != nil {
		return removed, err
	}
	return removed, nil
}

// EndSession atomically tears down the caller's open session: close any live
// game, delete the session row, clear both partner refs, create the two
// pending ratings, move both users out of CHATTING and notify the partner.
// The caller is released straight to IDLE; only the partner is parked in
// RATING (their pending rating survives either way). Returns the former
// partner, or nil when the user had no session (a repeated call is a clean
// no-op).
func (s *MatchService) EndSession(userID int64) (*int64, error) {
	user, err := s.Users.Get(userID)
	if err != nil {
		return nil, err
	}
	if user.PartnerID == nil {
		return nil, nil
	}
	partnerID := *user.PartnerID

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		err := tx.Where("(user_a = ? AND user_b = ?) OR (user_a = ? AND user_b = ?)",
			userID, partnerID, partnerID, userID).
			First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Partner ref without a session row: a teardown already ran or
			// state is corrupt. Clear the dangling refs, pull both users out
			// of CHATTING and skip the rest.
			log.Printf("[MATCH] no open session for %d/%d, clearing stale partner refs", userID, partnerID)
			if err := clearPartnerRefs(tx, userID, partnerID); err != nil {
				return err
			}
			for _, id := range []int64{userID, partnerID} {
				if _, err := transitionState(tx, id, models.StateChatting, models.StateIdle); err != nil {
					return err
				}
			}
			return nil
		}
		if err != nil {
			return err
		}

		// Close a winnerless game before the session row disappears.
		err = tx.Model(&models.ActiveGame{}).
			Where("session_id = ? AND ended_at IS NULL", session.ID).
			Update("ended_at", time.Now()).Error
		if err != nil {
			return err
		}

		if err := tx.Delete(&session).Error; err != nil {
			return err
		}

		if err := clearPartnerRefs(tx, userID, partnerID); err != nil {
			return err
		}

		pending := []models.PendingRating{
			{RaterID: userID, RatedID: partnerID},
			{RaterID: partnerID, RatedID: userID},
		}
		err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pending).Error
		if err != nil {
			return err
		}

		// The state changes commit with the teardown or not at all; a crash
		// must never leave two users CHATTING with no session behind them.
		if _, err := transitionState(tx, userID, models.StateChatting, models.StateIdle); err != nil {
			return err
		}
		if _, err := transitionState(tx, partnerID, models.StateChatting, models.StateRating); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]interface{}{"partner_id": userID})
		if err != nil {
			return err
		}
		note := models.Notification{
			UserID:  partnerID,
			Kind:    models.NotifyPartnerLeft,
			Payload: string(payload),
		}
		return tx.Create(&note).Error
	})
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return &partnerID, nil
}

func clearPartnerRefs(tx *gorm.DB, a, b int64) error {
	return tx.Model(&models.User{}).
		Where("id IN ?", []int64{a, b}).
		Update("partner_id", nil).Error
}

// Partner exposes the partner point read at the engine surface.
func (s *MatchService) Partner(userID int64) (*int64, error) {
	return s.Users.Partner(userID)
}

// SessionFor returns the user's open session, or ErrNoOpenSession.
func (s *MatchService) SessionFor(userID int64) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.Where("user_a = ? OR user_b = ?", userID, userID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenSession
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}
