package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

// Store is everything a storage adapter provides.
type Store interface {
	ports.WebsiteRepository
	ports.ScanRepository
	ports.JobRepository
}

// RunStoreContract checks the persistence rules every adapter must share.
// The store must start empty; subtests run in order against it.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := func(id, websiteID string, at time.Time) domain.ScanRecord {
		return domain.ScanRecord{
			ID:        id,
			WebsiteID: websiteID,
			UserID:    "u1",
			URL:       "https://example.com",
			Status:    domain.StatusPending,
			CreatedAt: at,
		}
	}
	create := func(t *testing.T, rec domain.ScanRecord) domain.ScanRecord {
		t.Helper()
		got, err := store.CreateScanRecord(ctx, rec)
		require.NoError(t, err)
		return got
	}

	// Runs first so no other subtest has left pending records behind.
	t.Run("ClaimNextOldestFirst", func(t *testing.T) {
		create(t, pending("claim-1", "w-claim", base.Add(-2*time.Hour)))
		create(t, pending("claim-2", "w-claim", base.Add(-time.Hour)))

		rec, found, err := store.ClaimNext(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "claim-1", rec.ID)
		assert.Equal(t, domain.StatusRunning, rec.Status)

		rec, found, err = store.ClaimNext(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "claim-2", rec.ID)

		_, found, err = store.ClaimNext(ctx)
		require.NoError(t, err)
		assert.False(t, found)

		stored, err := store.GetScanRecord(ctx, "claim-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRunning, stored.Status)
		for _, id := range []string{"claim-1", "claim-2"} {
			require.NoError(t, store.UpdateScanRecord(ctx, id, domain.ScanPatch{Status: domain.StatusFailed}))
		}
	})

	t.Run("Websites", func(t *testing.T) {
		key := "secret"
		w, err := store.CreateWebsite(ctx, domain.Website{ID: "site-1", UserID: "u1", URL: "https://example.com/", APIKey: &key, CreatedAt: base})
		require.NoError(t, err)
		_, err = store.CreateWebsite(ctx, domain.Website{ID: "site-2", UserID: "u1", URL: "https://example.org/", CreatedAt: base})
		require.NoError(t, err)

		got, err := store.GetWebsite(ctx, "site-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, w.URL, got.URL)
		require.NotNil(t, got.APIKey)
		assert.Equal(t, "secret", *got.APIKey)

		got, err = store.GetWebsite(ctx, "site-2", "u1")
		require.NoError(t, err)
		assert.Nil(t, got.APIKey)

		_, err = store.GetWebsite(ctx, "site-1", "u2")
		assert.ErrorIs(t, err, ports.ErrNotFound)
		_, err = store.GetWebsite(ctx, "missing", "u1")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("LifecycleRoundTrip", func(t *testing.T) {
		rec := create(t, pending("life-1", "w-life", base))
		assert.Equal(t, domain.StatusPending, rec.Status)
		assert.True(t, base.Equal(rec.CreatedAt))

		require.NoError(t, store.UpdateScanRecord(ctx, rec.ID, domain.ScanPatch{Status: domain.StatusRunning}))

		completedAt := base.Add(90 * time.Second)
		duration := 90.5
		score := 64
		level := domain.ThreatMedium
		results := &domain.ProbeResults{}
		for _, name := range domain.AllProbes {
			results.Set(domain.Fallback(name, nil))
		}
		results.Malware = &domain.MalwareOutcome{Status: domain.MalwareSuspicious, ThreatsDetected: 1, Evidence: []string{"eval_gzinflate"}}
		patch := domain.ScanPatch{
			Status:          domain.StatusCompleted,
			CompletedAt:     &completedAt,
			DurationSeconds: &duration,
			OverallScore:    &score,
			ThreatLevel:     &level,
			ProbeResults:    results,
		}
		require.NoError(t, store.UpdateScanRecord(ctx, rec.ID, patch))

		got, err := store.GetScanRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, completedAt.Equal(*got.CompletedAt))
		assert.Equal(t, &duration, got.DurationSeconds)
		assert.Equal(t, &score, got.OverallScore)
		assert.Equal(t, &level, got.ThreatLevel)
		assert.Equal(t, results, got.ProbeResults)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("ForwardOnlyTransitions", func(t *testing.T) {
		rec := create(t, pending("fwd-1", "w-fwd", base))

		err := store.UpdateScanRecord(ctx, rec.ID, domain.ScanPatch{Status: domain.StatusCompleted})
		assert.ErrorIs(t, err, ports.ErrInvalidTransition)

		msg := "boom"
		require.NoError(t, store.UpdateScanRecord(ctx, rec.ID, domain.ScanPatch{Status: domain.StatusFailed, ErrorMessage: &msg}))
		for _, next := range []domain.ScanStatus{domain.StatusPending, domain.StatusRunning, domain.StatusCompleted, domain.StatusFailed} {
			err := store.UpdateScanRecord(ctx, rec.ID, domain.ScanPatch{Status: next})
			assert.ErrorIs(t, err, ports.ErrInvalidTransition, "failed -> %s", next)
		}

		got, err := store.GetScanRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "boom", *got.ErrorMessage)

		err = store.UpdateScanRecord(ctx, "missing", domain.ScanPatch{Status: domain.StatusRunning})
		assert.ErrorIs(t, err, ports.ErrNotFound)
		_, err = store.GetScanRecord(ctx, "missing")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		for i, id := range []string{"list-1", "list-2", "list-3"} {
			create(t, pending(id, "w-list", base.Add(time.Duration(i)*time.Minute)))
		}
		create(t, pending("list-other", "w-list-other", base.Add(time.Hour)))

		got, err := store.ListScanRecords(ctx, "w-list", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "list-3", got[0].ID)
		assert.Equal(t, "list-2", got[1].ID)

		got, err = store.ListScanRecords(ctx, "w-none", 10)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("LatestCompletedByCompletionTime", func(t *testing.T) {
		_, found, err := store.LatestCompleted(ctx, "w-latest")
		require.NoError(t, err)
		assert.False(t, found)

		finish := func(id string, at time.Time) {
			require.NoError(t, store.UpdateScanRecord(ctx, id, domain.ScanPatch{Status: domain.StatusRunning}))
			require.NoError(t, store.UpdateScanRecord(ctx, id, domain.ScanPatch{Status: domain.StatusCompleted, CompletedAt: &at}))
		}
		create(t, pending("latest-1", "w-latest", base))
		create(t, pending("latest-2", "w-latest", base.Add(time.Minute)))
		create(t, pending("latest-3", "w-latest", base.Add(2*time.Minute)))
		finish("latest-2", base.Add(time.Hour))
		finish("latest-1", base.Add(2*time.Hour))
		require.NoError(t, store.UpdateScanRecord(ctx, "latest-3", domain.ScanPatch{Status: domain.StatusFailed}))

		got, found, err := store.LatestCompleted(ctx, "w-latest")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "latest-1", got.ID)
	})
}
