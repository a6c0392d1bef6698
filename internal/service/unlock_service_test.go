package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
)

func TestResolveUnlocksPredicates(t *testing.T) {
	apps := newStubApps(&models.Application{ID: "app-1", StudentID: "stu-1", Status: models.ApplicationStatusSubmitted})
	docs := newStubDocs()
	forms := newStubForms()
	svc := NewUnlockService(apps, docs, forms, nil, nil, 0, nil)

	unlocks, err := svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, unlocks[models.DocTypeBLI01], "BLI-01 unlocks as soon as the application exists")
	require.False(t, unlocks[models.DocTypeBLI02])
	require.False(t, unlocks[models.DocTypeBLI03])
	require.False(t, unlocks[models.DocTypeSLI03])
	require.False(t, unlocks[models.DocTypeDLI01])
	require.False(t, unlocks[models.DocTypeBLI04])

	// Approval opens the BLI-03 stage, both online and hardcopy.
	apps.apps["app-1"].Status = models.ApplicationStatusApproved
	unlocks, err = svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, unlocks[models.DocTypeBLI03])
	require.True(t, unlocks[models.DocTypeBLI03HC])
	require.False(t, unlocks[models.DocTypeSLI03])

	// A signed BLI-02 upload unlocks its own slot.
	require.NoError(t, docs.Create(context.Background(), &models.Document{
		ApplicationID: "app-1", Type: models.DocTypeBLI02, Status: models.DocumentStatusSigned, FileRef: "uploads/bli02.pdf", Version: 1,
	}))
	unlocks, err = svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, unlocks[models.DocTypeBLI02])
}

func TestSLI03AndDLI01TrackCoordinatorTimestamp(t *testing.T) {
	apps := newStubApps(&models.Application{ID: "app-1", StudentID: "stu-1", Status: models.ApplicationStatusApproved})
	forms := newStubForms(&models.FormResponse{ApplicationID: "app-1", FormType: models.FormTypeBLI03, Payload: []byte(`{}`)})
	svc := NewUnlockService(apps, newStubDocs(), forms, nil, nil, 0, nil)

	unlocks, err := svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.False(t, unlocks[models.DocTypeSLI03])
	require.False(t, unlocks[models.DocTypeDLI01])

	now := time.Now().UTC()
	fr := forms.get("app-1", models.FormTypeBLI03)
	fr.CoordinatorSignedAt = &now

	unlocks, err = svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, unlocks[models.DocTypeSLI03])
	require.True(t, unlocks[models.DocTypeDLI01])

	// Clearing the timestamp flips both back with no other state change.
	fr.CoordinatorSignedAt = nil
	unlocks, err = svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.False(t, unlocks[models.DocTypeSLI03])
	require.False(t, unlocks[models.DocTypeDLI01])
}

func TestMaterializeCreatesSLI03AndDLI01ExactlyOnce(t *testing.T) {
	now := time.Now().UTC()
	apps := newStubApps(&models.Application{ID: "app-1", StudentID: "stu-1", Status: models.ApplicationStatusApproved})
	docs := newStubDocs(&models.Document{
		ApplicationID: "app-1", Type: models.DocTypeBLI01, Status: models.DocumentStatusSigned,
		FileRef: models.FileRefOnlineSubmission, Version: 1,
	})
	forms := newStubForms(&models.FormResponse{
		ApplicationID: "app-1", FormType: models.FormTypeBLI03, Payload: []byte(`{}`),
		CoordinatorSignedAt: &now,
	})
	notify := &stubNotifier{}
	svc := NewUnlockService(apps, docs, forms, nil, notify, 0, nil)

	created, err := svc.MaterializeUnlocked(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, created, 2)

	types := map[models.DocumentType]bool{}
	for _, doc := range created {
		types[doc.Type] = true
		require.Equal(t, models.DocumentStatusSigned, doc.Status)
		require.Equal(t, models.GeneratedFileRef(doc.Type), doc.FileRef)
	}
	require.True(t, types[models.DocTypeSLI03])
	require.True(t, types[models.DocTypeDLI01])

	// Exactly one ready event for the student.
	ready := notify.ofType(models.NotifySLI03Ready)
	require.Len(t, ready, 1)
	require.Equal(t, "stu-1", ready[0].UserID)

	// Rerun is a no-op.
	created, err = svc.MaterializeUnlocked(context.Background(), "app-1")
	require.NoError(t, err)
	require.Empty(t, created)
	require.Len(t, notify.ofType(models.NotifySLI03Ready), 1)
}

func TestResolveUnlocksServesFromCache(t *testing.T) {
	apps := newStubApps(&models.Application{ID: "app-1", StudentID: "stu-1", Status: models.ApplicationStatusSubmitted})
	cache := newStubCache()
	svc := NewUnlockService(apps, newStubDocs(), newStubForms(), cache, nil, time.Minute, nil)

	first, err := svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.False(t, first[models.DocTypeBLI03])

	// The underlying state changes but the cached answer is served until
	// invalidation.
	apps.apps["app-1"].Status = models.ApplicationStatusApproved
	cached, err := svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.False(t, cached[models.DocTypeBLI03])

	_, err = svc.MaterializeUnlocked(context.Background(), "app-1")
	require.NoError(t, err)

	fresh, err := svc.ResolveUnlocks(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, fresh[models.DocTypeBLI03])
}

func TestResolveUnlocksUnknownApplication(t *testing.T) {
	svc := NewUnlockService(newStubApps(), newStubDocs(), newStubForms(), nil, nil, 0, nil)
	_, err := svc.ResolveUnlocks(context.Background(), "missing")
	require.Error(t, err)
}
