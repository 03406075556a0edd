package appeals

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
)

type memoryRepo struct {
	appeals     map[uuid.UUID]Appeal
	details     map[uuid.UUID]Detail
	assignments []*Assignment
	history     []AssignmentHistory
	messages    []Message
	support     []SupportAssignment
	users       map[uuid.UUID]UserRef
	attachments map[uuid.UUID]Attachment
	now         time.Time
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		appeals:     make(map[uuid.UUID]Appeal),
		details:     make(map[uuid.UUID]Detail),
		users:       make(map[uuid.UUID]UserRef),
		attachments: make(map[uuid.UUID]Attachment),
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) activeAssignment(appealID uuid.UUID) *Assignment {
	for _, a := range r.assignments {
		if a.AppealID == appealID && a.ReleasedAt == nil {
			return a
		}
	}
	return nil
}

func (r *memoryRepo) GetView(_ context.Context, id uuid.UUID) (View, error) {
	appeal, ok := r.appeals[id]
	if !ok {
		return View{}, httpx.ErrNotFound
	}
	v := View{Appeal: appeal, Detail: r.details[id]}
	if appeal.UserID != nil {
		v.UserName = r.users[*appeal.UserID].Username
	}
	if a := r.activeAssignment(id); a != nil {
		userID := a.UserID
		v.AssignedTo = &userID
		v.AssignedName = r.users[a.UserID].Username
	}
	return v, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) (Page, error) {
	var out []Summary
	for id, a := range r.appeals {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, a.Status) {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, a.Type) {
			continue
		}
		if filter.OwnerID != nil && (a.UserID == nil || *a.UserID != *filter.OwnerID) {
			continue
		}
		if filter.AssignedTo != nil {
			act := r.activeAssignment(id)
			if act == nil || act.UserID != *filter.AssignedTo {
				continue
			}
		}
		out = append(out, Summary{ID: id, Type: a.Type, Status: a.Status, UserID: a.UserID})
	}
	return Page{Appeals: out, Total: len(out), PageNum: 1, PerPage: len(out) + 1, TotalPages: 1}, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsType(list []Type, t Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func (r *memoryRepo) ListMessages(_ context.Context, appealID uuid.UUID) ([]Message, error) {
	var out []Message
	for _, m := range r.messages {
		if m.AppealID == appealID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) ActiveAssignment(_ context.Context, appealID uuid.UUID) (*Assignment, error) {
	return r.activeAssignment(appealID), nil
}

func (r *memoryRepo) CannotReassign(_ context.Context, appealID, userID uuid.UUID) (bool, error) {
	for _, h := range r.history {
		if h.AppealID == appealID && h.UserID == userID && h.CannotReassign {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ActiveSupportAssignment(_ context.Context, supportID uuid.UUID) (*SupportAssignment, error) {
	var latest *SupportAssignment
	for i := range r.support {
		sa := &r.support[i]
		if sa.SupportID != supportID || !sa.IsActive {
			continue
		}
		if latest == nil || sa.AssignedAt.After(latest.AssignedAt) {
			latest = sa
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (r *memoryRepo) SupportTeam(_ context.Context, moderatorID uuid.UUID) ([]UserRef, error) {
	var team []UserRef
	for _, sa := range r.support {
		if sa.ModeratorID == moderatorID && sa.IsActive {
			team = append(team, r.users[sa.SupportID])
		}
	}
	return team, nil
}

func (r *memoryRepo) Counters(_ context.Context, userID uuid.UUID) (Counters, error) {
	var c Counters
	for id, a := range r.appeals {
		if a.Status == StatusPending {
			c.Pending++
		}
		if act := r.activeAssignment(id); act != nil && act.UserID == userID &&
			(a.Status == StatusPending || a.Status == StatusInProgress) {
			c.UserAssigned++
		}
	}
	return c, nil
}

func (r *memoryRepo) UserRef(_ context.Context, userID uuid.UUID) (UserRef, error) {
	u, ok := r.users[userID]
	if !ok {
		return UserRef{}, httpx.ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) CreateAttachment(_ context.Context, att Attachment) error {
	r.attachments[att.ID] = att
	return nil
}

func (r *memoryRepo) GetAttachment(_ context.Context, id uuid.UUID) (Attachment, error) {
	att, ok := r.attachments[id]
	if !ok {
		return Attachment{}, httpx.ErrNotFound
	}
	return att, nil
}

func (r *memoryRepo) ListAttachments(_ context.Context, appealID uuid.UUID) ([]Attachment, error) {
	var out []Attachment
	for _, att := range r.attachments {
		if att.AppealID == appealID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (r *memoryRepo) StaleAssignments(_ context.Context, idleSince time.Time) ([]Assignment, error) {
	var out []Assignment
	for _, a := range r.assignments {
		if a.ReleasedAt != nil || r.appeals[a.AppealID].Status != StatusInProgress {
			continue
		}
		last := a.AssignedAt
		for _, m := range r.messages {
			if m.AppealID == a.AppealID && m.UserID == a.UserID && !m.IsSystem && m.CreatedAt.After(last) {
				last = m.CreatedAt
			}
		}
		if last.Before(idleSince) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetAppealForUpdate(_ context.Context, id uuid.UUID) (Appeal, error) {
	appeal, ok := tx.repo.appeals[id]
	if !ok {
		return Appeal{}, httpx.ErrNotFound
	}
	return appeal, nil
}

func (tx *memoryTx) CreateAppeal(_ context.Context, appeal Appeal, detail Detail) error {
	appeal.CreatedAt = tx.repo.now
	tx.repo.appeals[appeal.ID] = appeal
	tx.repo.details[appeal.ID] = detail
	return nil
}

func (tx *memoryTx) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	appeal, ok := tx.repo.appeals[id]
	if !ok {
		return httpx.ErrNotFound
	}
	appeal.Status = status
	tx.repo.appeals[id] = appeal
	return nil
}

func (tx *memoryTx) ReleaseActiveAssignment(_ context.Context, appealID uuid.UUID, auto bool) (*Assignment, error) {
	a := tx.repo.activeAssignment(appealID)
	if a == nil {
		return nil, nil
	}
	released := tx.repo.now
	a.ReleasedAt = &released
	a.IsAutoReleased = auto
	out := *a
	return &out, nil
}

func (tx *memoryTx) CreateAssignment(_ context.Context, appealID, userID uuid.UUID) error {
	tx.repo.assignments = append(tx.repo.assignments, &Assignment{
		AppealID:   appealID,
		UserID:     userID,
		AssignedAt: tx.repo.now,
	})
	return nil
}

func (tx *memoryTx) InsertHistory(_ context.Context, h AssignmentHistory) error {
	tx.repo.history = append(tx.repo.history, h)
	return nil
}

func (tx *memoryTx) InsertMessage(_ context.Context, m Message) (Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = tx.repo.now
	tx.repo.messages = append(tx.repo.messages, m)
	return m, nil
}

type recordingNotifier struct {
	appealEvents []any
	listEvents   []any
	userEvents   map[uuid.UUID][]any
	counterCalls int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{userEvents: make(map[uuid.UUID][]any)}
}

func (n *recordingNotifier) AppealEvent(_ context.Context, _ uuid.UUID, payload any) {
	n.appealEvents = append(n.appealEvents, payload)
}
func (n *recordingNotifier) ListEvent(_ context.Context, payload any) {
	n.listEvents = append(n.listEvents, payload)
}
func (n *recordingNotifier) UserEvent(_ context.Context, userID uuid.UUID, payload any) {
	n.userEvents[userID] = append(n.userEvents[userID], payload)
}
func (n *recordingNotifier) CountersChanged(context.Context) { n.counterCalls++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type fixture struct {
	repo     *memoryRepo
	notifier *recordingNotifier
	svc      *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	notifier := newRecordingNotifier()
	svc := NewService(repo, notifier, nil, testLogger())
	svc.now = func() time.Time { return repo.now }
	return &fixture{repo: repo, notifier: notifier, svc: svc}
}

func (f *fixture) addUser(name string, level rbac.Level) rbac.Principal {
	id := uuid.New()
	f.repo.users[id] = UserRef{ID: id, Username: name, Email: name + "@example.com"}
	return rbac.Principal{
		ID:       id,
		Username: name,
		Role:     rbac.Role{Name: name, Level: level, Permissions: map[rbac.Permission]bool{}},
	}
}

func (f *fixture) addAppeal(owner *rbac.Principal, typ Type, status Status) uuid.UUID {
	id := uuid.New()
	appeal := Appeal{ID: id, Type: typ, Status: status, CreatedAt: f.repo.now}
	if owner != nil {
		ownerID := owner.ID
		appeal.UserID = &ownerID
	}
	f.repo.appeals[id] = appeal
	f.repo.details[id] = Detail{AppealID: id, Description: "test appeal"}
	return id
}

func (f *fixture) systemMessages(appealID uuid.UUID) []Message {
	var out []Message
	for _, m := range f.repo.messages {
		if m.AppealID == appealID && m.IsSystem {
			out = append(out, m)
		}
	}
	return out
}

func TestCreateStoresAppealWithDetail(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, &owner.ID, TypeComplaint, CreateInput{
		Description:      "someone is griefing my base",
		ViolatorNickname: "griefer42",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Equal(t, TypeComplaint, view.Type)
	require.Equal(t, "griefer42", f.repo.details[view.ID].ViolatorNickname)
	require.Equal(t, 1, f.notifier.counterCalls)

	_, err = f.svc.Create(ctx, nil, Type("bogus"), CreateInput{Description: "x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestClaimRaceLoserGetsConflict(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	first := f.addUser("bob", rbac.LevelJuniorModerator)
	second := f.addUser("carol", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, first, appealID, "I will handle this", nil)
	require.NoError(t, err)

	// The loser read the appeal while still pending; inside the transaction
	// the status flip surfaces as a conflict.
	err = f.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := f.svc.claimLocked(ctx, tx, second, appealID)
		return err
	})
	require.ErrorIs(t, err, httpx.ErrConflict)

	// Exactly one active assignment survives the race.
	active := 0
	for _, a := range f.repo.assignments {
		if a.AppealID == appealID && a.ReleasedAt == nil {
			active++
		}
	}
	require.Equal(t, 1, active)
}

func TestClaimRequiresRespondPermission(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	junior := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeAmnesty, StatusPending)

	_, err := f.svc.PostMessage(context.Background(), junior, appealID, "let me take this", nil)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestPostMessageClaimsOnFirstModeratorMessage(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	msg, err := f.svc.PostMessage(ctx, mod, appealID, "hello, how can I help?", nil)
	require.NoError(t, err)
	require.Equal(t, "hello, how can I help?", msg.Message)

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, view.Status)
	require.Equal(t, mod.ID, *view.AssignedTo)

	system := f.systemMessages(appealID)
	require.Len(t, system, 1)
	require.Equal(t, "Appeal taken into work", system[0].Message)

	// Owner got the in-progress notice and the new-message notice.
	require.Len(t, f.notifier.userEvents[owner.ID], 2)

	// Second message must not claim again.
	_, err = f.svc.PostMessage(ctx, mod, appealID, "still there?", nil)
	require.NoError(t, err)
	require.Len(t, f.systemMessages(appealID), 1)
}

func TestPostMessageBroadcastsStoredClaimMessage(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)

	_, err := f.svc.PostMessage(context.Background(), mod, appealID, "on it", nil)
	require.NoError(t, err)

	system := f.systemMessages(appealID)
	require.Len(t, system, 1)
	require.NotEqual(t, uuid.Nil, system[0].ID)

	// The claim broadcast carries the persisted system message row, id
	// included, not a reconstruction.
	require.Len(t, f.notifier.appealEvents, 2)
	frame, ok := f.notifier.appealEvents[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, system[0].ID.String(), frame["id"])
	require.Equal(t, true, frame["is_system"])
	require.Equal(t, mod.Username, frame["user_name"])
}

func TestPostMessageTerminalAppealRejected(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	appealID := f.addAppeal(&owner, TypeHelp, StatusResolved)

	_, err := f.svc.PostMessage(context.Background(), owner, appealID, "are you there?", nil)
	require.ErrorIs(t, err, ErrAppealClosed)
}

func TestPostMessageStrangerForbidden(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	stranger := f.addUser("mallory", rbac.LevelUser)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, stranger, appealID, "let me in", nil)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = f.svc.PostMessage(ctx, owner, appealID, "please help", nil)
	require.NoError(t, err)
}

func TestUnassignBarsReclaim(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	other := f.addUser("carol", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, mod, appealID, "taking this one", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Unassign(ctx, mod, appealID))

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Nil(t, view.AssignedTo)

	// The moderator who gave it up is barred durably.
	_, err = f.svc.PostMessage(ctx, mod, appealID, "actually, me again", nil)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.ErrorIs(t, err, ErrCannotReassign)

	// Anyone else may still take it.
	_, err = f.svc.PostMessage(ctx, other, appealID, "I can help", nil)
	require.NoError(t, err)
}

func TestReassignToSupportModerator(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	support := f.addUser("bob", rbac.LevelJuniorModerator)
	oldMod := f.addUser("dave", rbac.LevelModerator)
	newMod := f.addUser("carol", rbac.LevelModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, support, appealID, "looking into it", nil)
	require.NoError(t, err)

	// Two support assignments; the latest one wins.
	f.repo.support = append(f.repo.support,
		SupportAssignment{SupportID: support.ID, ModeratorID: oldMod.ID, AssignedAt: f.repo.now.Add(-time.Hour), IsActive: true},
		SupportAssignment{SupportID: support.ID, ModeratorID: newMod.ID, AssignedAt: f.repo.now, IsActive: true},
	)

	require.NoError(t, f.svc.ReassignToSupportModerator(ctx, support, appealID))

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, view.Status)
	require.Equal(t, newMod.ID, *view.AssignedTo)
	require.Len(t, f.notifier.userEvents[newMod.ID], 1)

	// The released support staffer is not barred: only voluntary unassign
	// sets the flag.
	blocked, err := f.repo.CannotReassign(ctx, appealID, support.ID)
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestUnassignTerminalAppealConflicts(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusResolved)
	ctx := context.Background()

	err := f.svc.Unassign(ctx, mod, appealID)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.ErrorIs(t, err, ErrAppealClosed)

	// A closed appeal never returns to the queue.
	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, view.Status)
}

func TestReassignTerminalAppealConflicts(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	super := f.addUser("dave", rbac.LevelModeratorSupervisor)
	mod := f.addUser("carol", rbac.LevelModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusRejected)
	ctx := context.Background()

	err := f.svc.ReassignToModerator(ctx, super, appealID, mod.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.ErrorIs(t, err, ErrAppealClosed)

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, view.Status)
	require.Nil(t, view.AssignedTo)
	require.Empty(t, f.notifier.userEvents[mod.ID])
}

func TestReassignToSupportModeratorWithoutAssignment(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	support := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)

	err := f.svc.ReassignToSupportModerator(context.Background(), support, appealID)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCloseReleasesAssignment(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, mod, appealID, "reviewing your case", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Close(ctx, mod, appealID, StatusRejected))

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, view.Status)
	require.Nil(t, view.AssignedTo)

	// Closing twice conflicts.
	err = f.svc.Close(ctx, mod, appealID, StatusResolved)
	require.ErrorIs(t, err, httpx.ErrConflict)

	// A non-terminal target status is invalid.
	otherID := f.addAppeal(&owner, TypeHelp, StatusPending)
	err = f.svc.Close(ctx, mod, otherID, StatusInProgress)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestForceCloseRecordsReason(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	curator := f.addUser("eve", rbac.LevelChiefCurator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusInProgress)
	ctx := context.Background()

	require.NoError(t, f.svc.ForceClose(ctx, curator, appealID, "spam"))

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusResolved, view.Status)

	system := f.systemMessages(appealID)
	require.Len(t, system, 1)
	require.Contains(t, system[0].Message, "spam")
}

func TestAutoReleaseReturnsStaleAppeals(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	appealID := f.addAppeal(&owner, TypeHelp, StatusPending)
	ctx := context.Background()

	_, err := f.svc.PostMessage(ctx, mod, appealID, "I have your appeal", nil)
	require.NoError(t, err)

	// Advance time past the idle window.
	f.repo.now = f.repo.now.Add(73 * time.Hour)

	released, err := f.svc.AutoRelease(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	view, err := f.repo.GetView(ctx, appealID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, view.Status)
	require.Nil(t, view.AssignedTo)

	// Auto-release does not bar the moderator from reclaiming.
	_, err = f.svc.PostMessage(ctx, mod, appealID, "back on it", nil)
	require.NoError(t, err)

	// Nothing left to release.
	released, err = f.svc.AutoRelease(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, released)
}

func TestListRequiresRespondPermission(t *testing.T) {
	f := newFixture()
	plain := f.addUser("alice", rbac.LevelUser)
	junior := f.addUser("bob", rbac.LevelJuniorModerator)
	ctx := context.Background()

	f.addAppeal(&plain, TypeHelp, StatusPending)
	f.addAppeal(&plain, TypeAmnesty, StatusPending)

	_, err := f.svc.List(ctx, plain, ListFilter{})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Own submissions stay visible without any respond permission.
	page, err := f.svc.List(ctx, plain, ListFilter{OwnerID: &plain.ID})
	require.NoError(t, err)
	require.Len(t, page.Appeals, 2)

	// A junior moderator sees help appeals only.
	page, err = f.svc.List(ctx, junior, ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Appeals, 1)
	require.Equal(t, TypeHelp, page.Appeals[0].Type)

	// Requesting a type beyond their rights is rejected outright.
	_, err = f.svc.List(ctx, junior, ListFilter{Types: []Type{TypeAmnesty}})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// Requesting only statuses they cannot see is rejected too.
	_, err = f.svc.List(ctx, junior, ListFilter{Statuses: []Status{StatusInProgress}})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestCountersTrackPendingAndAssigned(t *testing.T) {
	f := newFixture()
	owner := f.addUser("alice", rbac.LevelUser)
	mod := f.addUser("bob", rbac.LevelJuniorModerator)
	ctx := context.Background()

	f.addAppeal(&owner, TypeHelp, StatusPending)
	claimed := f.addAppeal(&owner, TypeHelp, StatusPending)
	_, err := f.svc.PostMessage(ctx, mod, claimed, "on it", nil)
	require.NoError(t, err)

	counters, err := f.svc.Counters(ctx, mod.ID)
	require.NoError(t, err)
	require.Equal(t, 1, counters.Pending)
	require.Equal(t, 1, counters.UserAssigned)
}
