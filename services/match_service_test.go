package services

import (
	"errors"
	"testing"
	"time"

	"pairly-chat-system/models"
)

func TestRequestMatchAloneKeepsSearching(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)

	partner, err := e.match.RequestMatch(1, nil)
	if err != nil {
		t.Fatalf("RequestMatch() = %v", err)
	}
	if partner != nil {
		t.Fatalf("partner = %d, want none", *partner)
	}

	e.mustState(t, 1, models.StateSearching)
	if got := e.poolCount(t); got != 1 {
		t.Fatalf("pool rows = %d, want 1", got)
	}
}

func TestRequestMatchPairsCompatibleUsers(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	partner, err := e.match.RequestMatch(2, nil)
	if err != nil {
		t.Fatalf("RequestMatch() = %v", err)
	}
	if partner == nil || *partner != 1 {
		t.Fatalf("partner = %v, want 1", partner)
	}

	e.mustState(t, 1, models.StateChatting)
	e.mustState(t, 2, models.StateChatting)

	p1, _ := e.users.Partner(1)
	p2, _ := e.users.Partner(2)
	if p1 == nil || *p1 != 2 || p2 == nil || *p2 != 1 {
		t.Fatalf("partner refs = %v/%v, want 2/1", p1, p2)
	}

	if got := e.poolCount(t); got != 0 {
		t.Fatalf("pool rows = %d, want 0", got)
	}
	if got := e.sessionCount(t); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}

	// History is written in both directions.
	var history []models.MatchHistory
	if err := e.db.Find(&history).Error; err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}

	var notes int64
	err = e.db.Model(&models.Notification{}).
		Where("kind = ?", models.NotifyMatchFound).
		Count(&notes).Error
	if err != nil {
		t.Fatal(err)
	}
	if notes != 2 {
		t.Fatalf("match notifications = %d, want 2", notes)
	}
}

func TestRequestMatchRespectsGenderPreference(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderMale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}

	// User 2 wants a female partner; user 1 is male.
	partner, err := e.match.RequestMatch(2, strPtr(models.GenderFemale))
	if err != nil {
		t.Fatalf("RequestMatch() = %v", err)
	}
	if partner != nil {
		t.Fatalf("partner = %d, want none", *partner)
	}

	e.mustState(t, 2, models.StateSearching)
	if got := e.poolCount(t); got != 2 {
		t.Fatalf("pool rows = %d, want 2 (both still enqueued)", got)
	}
}

func TestRequestMatchPreferenceMustBeMutual(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	// User 1 only wants male partners; user 2 is female, so even though
	// user 2 has no preference the pair is ineligible.
	if _, err := e.match.RequestMatch(1, strPtr(models.GenderMale)); err != nil {
		t.Fatal(err)
	}
	partner, err := e.match.RequestMatch(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if partner != nil {
		t.Fatalf("partner = %d, want none", *partner)
	}
}

func TestRequestMatchWhileChatting(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := e.match.RequestMatch(1, nil); !errors.Is(err, ErrAlreadyChatting) {
		t.Fatalf("RequestMatch() while chatting = %v, want ErrAlreadyChatting", err)
	}
}

func TestRequestMatchExcludesRecentPartner(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.EndSession(1); err != nil {
		t.Fatal(err)
	}

	// The caller is idle already; release the rating-gated partner too, then
	// both search again inside the cooldown window.
	if err := e.users.ForceSetState(2, models.StateIdle); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	partner, err := e.match.RequestMatch(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if partner != nil {
		t.Fatalf("re-match inside window: partner = %d, want none", *partner)
	}

	// Age the history rows past the window; the next scan may pair them.
	err = e.db.Model(&models.MatchHistory{}).
		Where("1 = 1").
		Update("last_matched_at", time.Now().Add(-time.Hour)).Error
	if err != nil {
		t.Fatal(err)
	}

	partner, err = e.match.RequestMatch(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if partner == nil || *partner != 1 {
		t.Fatalf("re-match after window: partner = %v, want 1", partner)
	}
}

func TestRankCandidatesPolicy(t *testing.T) {
	t.Parallel()
	now := time.Now()
	high, low := 4.8, 3.0

	entries := []models.WaitingEntry{
		{UserID: 1, JoinedAt: now.Add(-1 * time.Minute)},                                              // plain, latest
		{UserID: 2, JoinedAt: now.Add(-10 * time.Minute)},                                             // plain, earliest
		{UserID: 3, Premium: true, RatingAvg: &low, RatingCount: 4, JoinedAt: now},                    // premium, low rating
		{UserID: 4, Premium: true, RatingAvg: &high, RatingCount: 9, JoinedAt: now},                   // premium, high rating
		{UserID: 5, Premium: true, RatingAvg: &high, RatingCount: 2, JoinedAt: now.Add(-time.Minute)}, // premium, high rating, earlier
	}
	rankCandidates(entries)

	want := []int64{5, 4, 3, 2, 1}
	for i, entry := range entries {
		if entry.UserID != want[i] {
			got := make([]int64, len(entries))
			for j, e := range entries {
				got[j] = e.UserID
			}
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}

func TestPairConflictRollsBackEverything(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	// User 2 has a stale pool entry: their state already moved to CHATTING
	// via a concurrent pairing. The conditional transition must veto the
	// pair and roll back the pool deletes and the session insert.
	if _, err := e.users.Transition(1, models.StateIdle, models.StateSearching); err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{1, 2} {
		err := e.pool.Join(models.WaitingEntry{UserID: id, Gender: models.GenderMale})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := e.users.ForceSetState(2, models.StateChatting); err != nil {
		t.Fatal(err)
	}

	if err := e.match.pair(1, 2); !errors.Is(err, errPairConflict) {
		t.Fatalf("pair() = %v, want errPairConflict", err)
	}

	if got := e.sessionCount(t); got != 0 {
		t.Fatalf("sessions = %d, want 0 after rollback", got)
	}
	if got := e.poolCount(t); got != 2 {
		t.Fatalf("pool rows = %d, want 2 after rollback", got)
	}
	e.mustState(t, 1, models.StateSearching)
}

func TestConcurrentScansPairVictimOnce(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderMale)
	e.addUser(t, 3, models.GenderFemale)

	for _, id := range []int64{1, 2, 3} {
		if _, err := e.users.Transition(id, models.StateIdle, models.StateSearching); err != nil {
			t.Fatal(err)
		}
	}
	genders := map[int64]string{1: models.GenderMale, 2: models.GenderMale, 3: models.GenderFemale}
	for id, gender := range genders {
		if err := e.pool.Join(models.WaitingEntry{UserID: id, Gender: gender}); err != nil {
			t.Fatal(err)
		}
	}

	// Scans for users 1 and 2 both selected user 3. The first pairing wins;
	// the second must fail atomically and leave user 2 enqueued.
	if err := e.match.pair(1, 3); err != nil {
		t.Fatalf("first pair() = %v", err)
	}
	if err := e.match.pair(2, 3); !errors.Is(err, errPairConflict) {
		t.Fatalf("second pair() = %v, want errPairConflict", err)
	}

	e.mustState(t, 1, models.StateChatting)
	e.mustState(t, 3, models.StateChatting)
	e.mustState(t, 2, models.StateSearching)

	if in, _ := e.pool.Contains(2); !in {
		t.Fatal("loser of the race fell out of the pool")
	}
	if got := e.sessionCount(t); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
}

func TestCommittedCancelBlocksInFlightPairing(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.users.Transition(2, models.StateIdle, models.StateSearching); err != nil {
		t.Fatal(err)
	}
	if err := e.pool.Join(models.WaitingEntry{UserID: 2, Gender: models.GenderFemale}); err != nil {
		t.Fatal(err)
	}

	// User 1's cancel commits while a scan that already selected them is
	// still in flight. The requester-side pool delete misses and the whole
	// pairing must fail, leaving the cancelled user idle.
	if _, err := e.match.CancelSearch(1); err != nil {
		t.Fatal(err)
	}
	if err := e.match.pair(1, 2); !errors.Is(err, errPairConflict) {
		t.Fatalf("pair() after committed cancel = %v, want errPairConflict", err)
	}

	e.mustState(t, 1, models.StateIdle)
	e.mustState(t, 2, models.StateSearching)
	if got := e.sessionCount(t); got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}
	if in, _ := e.pool.Contains(2); !in {
		t.Fatal("candidate dropped from pool by the failed pairing")
	}
	if p, _ := e.users.Partner(1); p != nil {
		t.Fatalf("cancelled user got partner %d", *p)
	}
}

func TestSearchRightAfterEndingChat(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.EndSession(1); err != nil {
		t.Fatal(err)
	}

	// Ending the chat must not trap the caller behind their unrated partner.
	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatalf("RequestMatch() right after ending = %v", err)
	}
	e.mustState(t, 1, models.StateSearching)

	// The partner stays rating-gated until they submit.
	if _, err := e.match.RequestMatch(2, nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("partner RequestMatch() = %v, want ErrNotReady", err)
	}
}

func TestEndSessionRecoversDanglingPartnerRefs(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	// Partner refs without a session row: corrupted leftovers of an
	// interrupted teardown. EndSession must clear the refs and pull both
	// users back out of CHATTING instead of leaving them unrecoverable.
	for _, side := range [2][2]int64{{1, 2}, {2, 1}} {
		err := e.db.Model(&models.User{}).
			Where("id = ?", side[0]).
			Updates(map[string]interface{}{
				"state":      models.StateChatting,
				"partner_id": side[1],
			}).Error
		if err != nil {
			t.Fatal(err)
		}
	}

	partner, err := e.match.EndSession(1)
	if err != nil {
		t.Fatalf("EndSession() = %v", err)
	}
	if partner == nil || *partner != 2 {
		t.Fatalf("partner = %v, want 2", partner)
	}

	for _, id := range []int64{1, 2} {
		if p, _ := e.users.Partner(id); p != nil {
			t.Fatalf("partner ref of %d still set", id)
		}
		e.mustState(t, id, models.StateIdle)
	}

	// Recovery creates no rating obligations.
	var pending int64
	if err := e.db.Model(&models.PendingRating{}).Count(&pending).Error; err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Fatalf("pending ratings = %d, want 0", pending)
	}
}

func TestCancelSearch(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}

	cancelled, err := e.match.CancelSearch(1)
	if err != nil {
		t.Fatalf("CancelSearch() = %v", err)
	}
	if !cancelled {
		t.Fatal("CancelSearch() = false, want true")
	}
	e.mustState(t, 1, models.StateIdle)

	cancelled, err = e.match.CancelSearch(1)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled {
		t.Fatal("second CancelSearch() = true, want false")
	}
}

func TestCancelAfterPairingIsNoOp(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}

	// The pairing committed before the cancel's delete executed.
	cancelled, err := e.match.CancelSearch(1)
	if err != nil {
		t.Fatalf("CancelSearch() = %v", err)
	}
	if cancelled {
		t.Fatal("CancelSearch() = true after pairing, want false")
	}
	e.mustState(t, 1, models.StateChatting)
}

func TestEndSessionTeardown(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}

	session, err := e.match.SessionFor(1)
	if err != nil {
		t.Fatal(err)
	}
	game := models.ActiveGame{
		ID:          "g-1",
		SessionID:   session.ID,
		GameType:    "tictactoe",
		Player1ID:   1,
		Player2ID:   2,
		CurrentTurn: 1,
	}
	if err := e.db.Create(&game).Error; err != nil {
		t.Fatal(err)
	}

	partner, err := e.match.EndSession(1)
	if err != nil {
		t.Fatalf("EndSession() = %v", err)
	}
	if partner == nil || *partner != 2 {
		t.Fatalf("partner = %v, want 2", partner)
	}

	if got := e.sessionCount(t); got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}

	// The in-session game ended with no winner.
	var endedGame models.ActiveGame
	if err := e.db.First(&endedGame, "id = ?", "g-1").Error; err != nil {
		t.Fatal(err)
	}
	if endedGame.EndedAt == nil {
		t.Fatal("game still open after teardown")
	}
	if endedGame.WinnerID != nil {
		t.Fatalf("game winner = %d, want none", *endedGame.WinnerID)
	}

	p1, _ := e.users.Partner(1)
	p2, _ := e.users.Partner(2)
	if p1 != nil || p2 != nil {
		t.Fatalf("partner refs = %v/%v, want nil/nil", p1, p2)
	}
	// The caller is released immediately; only the partner is rating-gated.
	e.mustState(t, 1, models.StateIdle)
	e.mustState(t, 2, models.StateRating)

	var pending int64
	if err := e.db.Model(&models.PendingRating{}).Count(&pending).Error; err != nil {
		t.Fatal(err)
	}
	if pending != 2 {
		t.Fatalf("pending ratings = %d, want 2 (one per direction)", pending)
	}

	var left int64
	err = e.db.Model(&models.Notification{}).
		Where("kind = ? AND user_id = ?", models.NotifyPartnerLeft, 2).
		Count(&left).Error
	if err != nil {
		t.Fatal(err)
	}
	if left != 1 {
		t.Fatalf("partner_left notifications for 2 = %d, want 1", left)
	}
}

func TestEndSessionTwiceIsNoOp(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := e.match.EndSession(1); err != nil {
		t.Fatal(err)
	}
	partner, err := e.match.EndSession(2)
	if err != nil {
		t.Fatalf("second EndSession() = %v", err)
	}
	if partner != nil {
		t.Fatalf("second EndSession() partner = %d, want none", *partner)
	}

	var pending int64
	if err := e.db.Model(&models.PendingRating{}).Count(&pending).Error; err != nil {
		t.Fatal(err)
	}
	if pending != 2 {
		t.Fatalf("pending ratings = %d, want 2 (no duplicates)", pending)
	}
}

func TestEndSessionWithoutPartner(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)

	partner, err := e.match.EndSession(1)
	if err != nil {
		t.Fatalf("EndSession() = %v", err)
	}
	if partner != nil {
		t.Fatalf("partner = %d, want none", *partner)
	}
}

func TestPartnerAndSessionInvariant(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.addUser(t, 1, models.GenderMale)
	e.addUser(t, 2, models.GenderFemale)

	// Nobody paired: partner refs nil, no sessions.
	if p, _ := e.users.Partner(1); p != nil {
		t.Fatal("partner set without a session")
	}

	if _, err := e.match.RequestMatch(1, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.match.RequestMatch(2, nil); err != nil {
		t.Fatal(err)
	}

	// Paired: both partner refs set and exactly one session holds them; no
	// user sits in the pool and a session at once.
	for _, id := range []int64{1, 2} {
		p, err := e.users.Partner(id)
		if err != nil || p == nil {
			t.Fatalf("partner of %d = %v, %v", id, p, err)
		}
		if in, _ := e.pool.Contains(id); in {
			t.Fatalf("user %d in pool while in a session", id)
		}
	}

	if _, err := e.match.EndSession(1); err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{1, 2} {
		if p, _ := e.users.Partner(id); p != nil {
			t.Fatalf("partner of %d still set after teardown", id)
		}
	}
}
