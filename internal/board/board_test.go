package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"opsboard/internal/auth"
	"opsboard/internal/db"
	"opsboard/internal/domain"
	"opsboard/internal/migrate"
	"opsboard/internal/repo"
)

func newTestBoard(t *testing.T) Board {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	b := New(conn)
	b.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "mara", Name: "Mara", Role: domain.RoleManager},
		{ID: "jon", Name: "Jon", Role: domain.RoleEmployee},
	} {
		require.NoError(t, b.Repo.EnsureUser(ctx, nil, u))
	}
	return b
}

func seedProject(t *testing.T, b Board, name string) domain.Project {
	t.Helper()
	p, err := b.InitProject(context.Background(), "", name, "mara")
	require.NoError(t, err)
	return p
}

func TestStageOrderSequential(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	names := []string{"Backlog", "Triage", "Resolved", "Archived"}
	for i, name := range names {
		s, err := b.CreateStage(ctx, StageCreateOptions{
			ProjectID: p.ID, Name: name, StageType: domain.StageTypeIncident,
			UserID: "mara", Role: domain.RoleManager,
		})
		require.NoError(t, err)
		require.Equal(t, i, s.Order, "stage %s", name)
	}

	// Another type starts its own sequence at zero.
	s, err := b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p.ID, Name: "To Do", StageType: domain.StageTypeTask,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)
	require.Equal(t, 0, s.Order)

	listed, err := b.ListStages(ctx, p.ID, domain.StageTypeIncident)
	require.NoError(t, err)
	require.Len(t, listed, len(names))
	for i, st := range listed {
		require.Equal(t, i, st.Order)
		require.Equal(t, names[i], st.Name)
	}
}

func TestStageOrderConcurrent(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.CreateStage(ctx, StageCreateOptions{
				ProjectID: p.ID, Name: "Column " + string(rune('A'+i)),
				StageType: domain.StageTypeTask,
				UserID:    "mara", Role: domain.RoleManager,
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	listed, err := b.ListStages(ctx, p.ID, domain.StageTypeTask)
	require.NoError(t, err)
	require.Len(t, listed, n)
	seen := map[int]bool{}
	for i, st := range listed {
		require.Equal(t, i, st.Order, "orders must be 0..n-1 with no gaps")
		require.False(t, seen[st.Order])
		seen[st.Order] = true
	}
}

func TestStageValidation(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	_, err := b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p.ID, Name: "   ", StageType: domain.StageTypeTask,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorAs(t, err, &ValidationError{})

	_, err = b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p.ID, Name: "Weird", StageType: "SPRINT",
		UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorAs(t, err, &ValidationError{})

	_, err = b.CreateStage(ctx, StageCreateOptions{
		ProjectID: "nope", Name: "Backlog", StageType: domain.StageTypeTask,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestMoveWritesExactlyOneAuditRow(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	stage, err := b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p.ID, Name: "Backlog", StageType: domain.StageTypeIncident,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	inc, err := b.CreateIncident(ctx, IncidentCreateOptions{
		ProjectID: p.ID, Title: "Disk full", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)
	require.Nil(t, inc.StageID)

	n, err := b.Repo.CountActivitiesForItem(ctx, domain.KindIncident, inc.ID)
	require.NoError(t, err)
	require.Equal(t, 0, n, "creation is not audited")

	require.NoError(t, b.Move(ctx, MoveOptions{
		ProjectID: p.ID, Kind: domain.KindIncident, ItemID: inc.ID,
		StageID: &stage.ID, UserID: "mara", Role: domain.RoleManager,
	}))

	moved, err := b.Repo.GetIncident(ctx, p.ID, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.StageID)
	require.Equal(t, stage.ID, *moved.StageID)

	n, err = b.Repo.CountActivitiesForItem(ctx, domain.KindIncident, inc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	acts, err := b.Repo.ListActivities(ctx, repo.ActivityFilters{ItemID: inc.ID})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.Equal(t, "STATUS_CHANGE", acts[0].Type)
	require.Equal(t, "mara", acts[0].UserID)
	require.JSONEq(t, `{"message":"Moved to stage: Backlog"}`, acts[0].Payload)
}

func TestMoveAuditUsesInjectedClock(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	task, err := b.CreateTask(ctx, TaskCreateOptions{
		ProjectID: p.ID, Title: "Patch servers", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)
	require.NoError(t, b.Move(ctx, MoveOptions{
		ProjectID: p.ID, Kind: domain.KindTask, ItemID: task.ID,
		StageID: nil, UserID: "mara", Role: domain.RoleManager,
	}))

	// The fixture only sets b.Now; the audit row must still carry it.
	acts, err := b.Repo.ListActivities(ctx, repo.ActivityFilters{ItemID: task.ID})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.Equal(t, "2026-03-14T09:30:00Z", acts[0].TS)
}

func TestMoveTypeSafety(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	taskStage, err := b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p.ID, Name: "To Do", StageType: domain.StageTypeTask,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	inc, err := b.CreateIncident(ctx, IncidentCreateOptions{
		ProjectID: p.ID, Title: "Outage", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	err = b.Move(ctx, MoveOptions{
		ProjectID: p.ID, Kind: domain.KindIncident, ItemID: inc.ID,
		StageID: &taskStage.ID, UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorAs(t, err, &ValidationError{})

	// Failed move leaves placement and audit log untouched.
	after, err := b.Repo.GetIncident(ctx, p.ID, inc.ID)
	require.NoError(t, err)
	require.Nil(t, after.StageID)
	n, err := b.Repo.CountActivitiesForItem(ctx, domain.KindIncident, inc.ID)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMoveCrossProjectScoping(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p1 := seedProject(t, b, "Ops")
	p2 := seedProject(t, b, "Elsewhere")

	task, err := b.CreateTask(ctx, TaskCreateOptions{
		ProjectID: p1.ID, Title: "Patch servers", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	// The item exists, just not under p2: NotFound, never a silent update.
	err = b.Move(ctx, MoveOptions{
		ProjectID: p2.ID, Kind: domain.KindTask, ItemID: task.ID,
		StageID: nil, UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorIs(t, err, repo.ErrNotFound)

	// A matching-type stage from another project is rejected as invalid.
	foreign, err := b.CreateStage(ctx, StageCreateOptions{
		ProjectID: p2.ID, Name: "To Do", StageType: domain.StageTypeTask,
		UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)
	err = b.Move(ctx, MoveOptions{
		ProjectID: p1.ID, Kind: domain.KindTask, ItemID: task.ID,
		StageID: &foreign.ID, UserID: "mara", Role: domain.RoleManager,
	})
	require.ErrorAs(t, err, &ValidationError{})
}

func TestUnstageIdempotentOnState(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	rr, err := b.CreateResourceRequest(ctx, RequestCreateOptions{
		ProjectID: p.ID, Title: "GPU quota", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)
	require.Nil(t, rr.StageID)

	// Unstaging an already-unstaged item succeeds and still audits.
	for i := 1; i <= 2; i++ {
		require.NoError(t, b.Move(ctx, MoveOptions{
			ProjectID: p.ID, Kind: domain.KindResourceRequest, ItemID: rr.ID,
			StageID: nil, UserID: "mara", Role: domain.RoleManager,
		}))
		after, err := b.Repo.GetResourceRequest(ctx, p.ID, rr.ID)
		require.NoError(t, err)
		require.Nil(t, after.StageID)
		n, err := b.Repo.CountActivitiesForItem(ctx, domain.KindResourceRequest, rr.ID)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	acts, err := b.Repo.ListActivities(ctx, repo.ActivityFilters{ItemID: rr.ID})
	require.NoError(t, err)
	require.Len(t, acts, 2)
	require.Equal(t, "REQUEST_UPDATE", acts[0].Type)
}

func TestMoveRequiresMembership(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	task, err := b.CreateTask(ctx, TaskCreateOptions{
		ProjectID: p.ID, Title: "Rotate keys", UserID: "mara", Role: domain.RoleManager,
	})
	require.NoError(t, err)

	err = b.Move(ctx, MoveOptions{
		ProjectID: p.ID, Kind: domain.KindTask, ItemID: task.ID,
		StageID: nil, UserID: "jon", Role: domain.RoleEmployee,
	})
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)

	// Elevated roles bypass membership.
	require.NoError(t, b.Move(ctx, MoveOptions{
		ProjectID: p.ID, Kind: domain.KindTask, ItemID: task.ID,
		StageID: nil, UserID: "jon", Role: domain.RoleAdmin,
	}))
}

func TestSeedStagesFromTemplates(t *testing.T) {
	b := newTestBoard(t)
	ctx := context.Background()
	p := seedProject(t, b, "Ops")

	created, err := b.SeedStages(ctx, p.ID, "mara", domain.RoleManager)
	require.NoError(t, err)
	require.Len(t, created, 9)

	taskStages, err := b.ListStages(ctx, p.ID, domain.StageTypeTask)
	require.NoError(t, err)
	require.Len(t, taskStages, 3)
	require.Equal(t, "To Do", taskStages[0].Name)
	require.Equal(t, "Done", taskStages[2].Name)
}
