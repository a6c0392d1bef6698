package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/jobs"
	"github.com/noah-isme/sma-li-api/pkg/storage"
)

type stubApps struct {
	apps    map[string]*models.Application
	deleted []string
	nextID  int
}

func newStubApps(apps ...*models.Application) *stubApps {
	s := &stubApps{apps: make(map[string]*models.Application)}
	for _, app := range apps {
		s.apps[app.ID] = app
	}
	return s
}

func (s *stubApps) Create(_ context.Context, app *models.Application) error {
	if app.ID == "" {
		s.nextID++
		app.ID = fmt.Sprintf("app-%d", s.nextID)
	}
	clone := *app
	s.apps[app.ID] = &clone
	return nil
}

func (s *stubApps) GetByID(_ context.Context, id string) (*models.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *app
	return &clone, nil
}

func (s *stubApps) FindByStudentAndSession(_ context.Context, studentID, sessionID string) (*models.Application, error) {
	for _, app := range s.apps {
		if app.StudentID == studentID && app.SessionID == sessionID {
			clone := *app
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubApps) ListByStudent(_ context.Context, studentID string) ([]models.Application, error) {
	var out []models.Application
	for _, app := range s.apps {
		if app.StudentID == studentID {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (s *stubApps) Update(_ context.Context, app *models.Application) error {
	if _, ok := s.apps[app.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *app
	s.apps[app.ID] = &clone
	return nil
}

func (s *stubApps) UpdateStatus(_ context.Context, id string, status models.ApplicationStatus) error {
	app, ok := s.apps[id]
	if !ok {
		return sql.ErrNoRows
	}
	app.Status = status
	return nil
}

func (s *stubApps) DeleteCascade(_ context.Context, id string) error {
	delete(s.apps, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubDocs struct {
	docs   map[string]*models.Document
	nextID int
	// vanishBeforeUpdate simulates the stale-cleanup race: the next Update
	// call finds its row gone.
	vanishBeforeUpdate bool
}

func newStubDocs(docs ...*models.Document) *stubDocs {
	s := &stubDocs{docs: make(map[string]*models.Document)}
	for _, doc := range docs {
		if doc.ID == "" {
			s.nextID++
			doc.ID = fmt.Sprintf("doc-%d", s.nextID)
		}
		clone := *doc
		s.docs[doc.ID] = &clone
	}
	return s
}

func (s *stubDocs) GetByID(_ context.Context, id string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *doc
	return &clone, nil
}

func (s *stubDocs) GetByApplicationAndType(_ context.Context, applicationID string, docType models.DocumentType) (*models.Document, error) {
	for _, doc := range s.docs {
		if doc.ApplicationID == applicationID && doc.Type == docType {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubDocs) ListByApplication(_ context.Context, applicationID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		if doc.ApplicationID == applicationID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *stubDocs) Create(_ context.Context, doc *models.Document) error {
	if doc.ID == "" {
		s.nextID++
		doc.ID = fmt.Sprintf("doc-%d", s.nextID)
	}
	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}

func (s *stubDocs) Update(_ context.Context, doc *models.Document) error {
	if s.vanishBeforeUpdate {
		s.vanishBeforeUpdate = false
		delete(s.docs, doc.ID)
	}
	if _, ok := s.docs[doc.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}

func (s *stubDocs) UpdateStatus(_ context.Context, id string, status models.DocumentStatus) error {
	doc, ok := s.docs[id]
	if !ok {
		return sql.ErrNoRows
	}
	doc.Status = status
	return nil
}

func (s *stubDocs) byType(applicationID string, docType models.DocumentType) *models.Document {
	for _, doc := range s.docs {
		if doc.ApplicationID == applicationID && doc.Type == docType {
			return doc
		}
	}
	return nil
}

type stubForms struct {
	forms  map[string]*models.FormResponse
	nextID int
}

func formKey(applicationID string, formType models.FormType) string {
	return applicationID + "|" + string(formType)
}

func newStubForms(forms ...*models.FormResponse) *stubForms {
	s := &stubForms{forms: make(map[string]*models.FormResponse)}
	for _, fr := range forms {
		if fr.ID == "" {
			s.nextID++
			fr.ID = fmt.Sprintf("form-%d", s.nextID)
		}
		clone := *fr
		s.forms[formKey(fr.ApplicationID, fr.FormType)] = &clone
	}
	return s
}

func (s *stubForms) Create(_ context.Context, fr *models.FormResponse) error {
	if fr.ID == "" {
		s.nextID++
		fr.ID = fmt.Sprintf("form-%d", s.nextID)
	}
	clone := *fr
	s.forms[formKey(fr.ApplicationID, fr.FormType)] = &clone
	return nil
}

func (s *stubForms) GetByApplicationAndType(_ context.Context, applicationID string, formType models.FormType) (*models.FormResponse, error) {
	fr, ok := s.forms[formKey(applicationID, formType)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *fr
	return &clone, nil
}

func (s *stubForms) Update(_ context.Context, fr *models.FormResponse) error {
	key := formKey(fr.ApplicationID, fr.FormType)
	if _, ok := s.forms[key]; !ok {
		return sql.ErrNoRows
	}
	clone := *fr
	s.forms[key] = &clone
	return nil
}

func (s *stubForms) get(applicationID string, formType models.FormType) *models.FormResponse {
	return s.forms[formKey(applicationID, formType)]
}

type stubReviews struct {
	reviews []*models.Review
	nextID  int
}

func (s *stubReviews) Create(_ context.Context, review *models.Review) error {
	if review.ID == "" {
		s.nextID++
		review.ID = fmt.Sprintf("review-%d", s.nextID)
	}
	clone := *review
	s.reviews = append(s.reviews, &clone)
	return nil
}

func (s *stubReviews) ListByApplication(_ context.Context, applicationID string) ([]models.Review, error) {
	var out []models.Review
	for _, review := range s.reviews {
		if review.ApplicationID == applicationID {
			out = append(out, *review)
		}
	}
	return out, nil
}

func (s *stubReviews) DeleteRequestChanges(_ context.Context, applicationID string) error {
	kept := s.reviews[:0]
	for _, review := range s.reviews {
		if review.ApplicationID == applicationID && review.Decision == models.DecisionRequestChanges {
			continue
		}
		kept = append(kept, review)
	}
	s.reviews = kept
	return nil
}

type stubSessions struct {
	sessions map[string]*models.TrainingSession
}

func newStubSessions(sessions ...*models.TrainingSession) *stubSessions {
	s := &stubSessions{sessions: make(map[string]*models.TrainingSession)}
	for _, session := range sessions {
		s.sessions[session.ID] = session
	}
	return s
}

func (s *stubSessions) GetByID(_ context.Context, id string) (*models.TrainingSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *session
	return &clone, nil
}

func (s *stubSessions) ListActive(_ context.Context) ([]models.TrainingSession, error) {
	var out []models.TrainingSession
	for _, session := range s.sessions {
		if session.Active {
			out = append(out, *session)
		}
	}
	return out, nil
}

type stubUsers struct {
	users map[string]*models.User
}

func newStubUsers(users ...*models.User) *stubUsers {
	s := &stubUsers{users: make(map[string]*models.User)}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (s *stubUsers) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	if user, ok := s.users[id]; ok {
		user.LastLoginAt = &at
	}
	return nil
}

type notifyCall struct {
	UserID        string
	Type          models.NotificationType
	ApplicationID string
	DedupeKey     string
	Data          map[string]string
}

type stubNotifier struct {
	calls []notifyCall
	seen  map[string]bool
}

func (s *stubNotifier) Notify(_ context.Context, userID string, t models.NotificationType, applicationID string, data map[string]string) error {
	s.calls = append(s.calls, notifyCall{UserID: userID, Type: t, ApplicationID: applicationID, Data: data})
	return nil
}

func (s *stubNotifier) NotifyDedupe(_ context.Context, userID string, t models.NotificationType, applicationID, dedupeKey string, data map[string]string) error {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[dedupeKey] {
		return nil
	}
	s.seen[dedupeKey] = true
	s.calls = append(s.calls, notifyCall{UserID: userID, Type: t, ApplicationID: applicationID, DedupeKey: dedupeKey, Data: data})
	return nil
}

func (s *stubNotifier) ofType(t models.NotificationType) []notifyCall {
	var out []notifyCall
	for _, call := range s.calls {
		if call.Type == t {
			out = append(out, call)
		}
	}
	return out
}

type stubNotifications struct {
	rows   []*models.Notification
	nextID int
}

func (s *stubNotifications) Create(_ context.Context, n *models.Notification) error {
	if n.ID == "" {
		s.nextID++
		n.ID = fmt.Sprintf("ntf-%d", s.nextID)
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.Category == "" {
		n.Category = models.CategoryOf(n.Type)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	clone := *n
	s.rows = append(s.rows, &clone)
	return nil
}

func (s *stubNotifications) ExistsByDedupeKey(_ context.Context, key string) (bool, error) {
	for _, row := range s.rows {
		if row.DedupeKey != nil && *row.DedupeKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubNotifications) ListQueuedPending(_ context.Context) ([]models.Notification, error) {
	var out []models.Notification
	for _, row := range s.rows {
		if row.Queued && row.Status == models.NotificationPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubNotifications) MarkOutcome(_ context.Context, ids []string, status models.NotificationStatus, batchID string, sentAt time.Time) error {
	for _, id := range ids {
		for _, row := range s.rows {
			if row.ID == id && row.Status == models.NotificationPending {
				row.Status = status
				row.BatchID = &batchID
				row.SentAt = &sentAt
			}
		}
	}
	return nil
}

func (s *stubNotifications) MarkSent(_ context.Context, id string, status models.NotificationStatus, sentAt time.Time) error {
	for _, row := range s.rows {
		if row.ID == id && row.Status == models.NotificationPending {
			row.Status = status
			row.SentAt = &sentAt
		}
	}
	return nil
}

func (s *stubNotifications) ListByUser(_ context.Context, userID string, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type stubMailer struct {
	sent []sentEmail
	fail bool
}

func (s *stubMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if s.fail {
		return fmt.Errorf("smtp unavailable")
	}
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

type stubTokens struct {
	tokens map[string]*models.SupervisorToken
	nextID int
}

func newStubTokens(tokens ...*models.SupervisorToken) *stubTokens {
	s := &stubTokens{tokens: make(map[string]*models.SupervisorToken)}
	for _, token := range tokens {
		if token.ID == "" {
			s.nextID++
			token.ID = fmt.Sprintf("tok-%d", s.nextID)
		}
		s.tokens[token.ID] = token
	}
	return s
}

func (s *stubTokens) Create(_ context.Context, token *models.SupervisorToken) error {
	if token.ID == "" {
		s.nextID++
		token.ID = fmt.Sprintf("tok-%d", s.nextID)
	}
	clone := *token
	s.tokens[token.ID] = &clone
	return nil
}

func (s *stubTokens) FindByToken(_ context.Context, value string) (*models.SupervisorToken, error) {
	for _, token := range s.tokens {
		if token.Token == value {
			clone := *token
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubTokens) RevokeActive(_ context.Context, applicationID string, formType models.FormType) error {
	for _, token := range s.tokens {
		if token.ApplicationID == applicationID && token.FormType == formType && !token.IsRevoked {
			token.IsRevoked = true
		}
	}
	return nil
}

func (s *stubTokens) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	token, ok := s.tokens[id]
	if !ok || token.UsedAt != nil || token.IsRevoked {
		return sql.ErrNoRows
	}
	token.UsedAt = &usedAt
	return nil
}

type stubCache struct {
	values map[string][]byte
}

func newStubCache() *stubCache {
	return &stubCache{values: make(map[string][]byte)}
}

func (s *stubCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.values[key] = raw
	return nil
}

func (s *stubCache) Delete(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

type stubOutbox struct {
	jobs []jobs.Job
}

func (s *stubOutbox) Enqueue(job jobs.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type stubBlob struct {
	files   map[string][]byte
	deleted []string
}

func newStubBlob() *stubBlob {
	return &stubBlob{files: make(map[string][]byte)}
}

func (s *stubBlob) Upload(_ context.Context, in storage.UploadInput) (storage.StoredFile, error) {
	path := in.Directory + "/" + in.Filename
	s.files[path] = in.Data
	return storage.StoredFile{Path: path, Provider: "stub"}, nil
}

func (s *stubBlob) Download(_ context.Context, path string) ([]byte, error) {
	data, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (s *stubBlob) Delete(_ context.Context, path string) error {
	if _, ok := s.files[path]; !ok {
		return fmt.Errorf("no such file: %s", path)
	}
	delete(s.files, path)
	s.deleted = append(s.deleted, path)
	return nil
}

func (s *stubBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := s.files[path]
	return ok, nil
}

func (s *stubBlob) GetURL(path string, _ int64) (string, error) {
	return "https://files.test/" + path, nil
}
