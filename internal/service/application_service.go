// Package service implements the admissions workflow: intake, review,
// provisioning and code-based access.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"schoolreg/internal/auth"
	"schoolreg/internal/featureflags"
	"schoolreg/internal/models"
	"schoolreg/internal/notifications"
	"schoolreg/internal/observability"
	"schoolreg/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const maxStudentCodeAttempts = 5

// Caller is the authenticated principal of a request. A nil *Caller is an
// anonymous request.
type Caller struct {
	UserID string
	Role   models.Role
}

func (c *Caller) authorizeReview() error {
	if c == nil || c.UserID == "" {
		return models.NewUnauthenticatedError("Authentication required")
	}
	if !c.Role.CanReview() {
		return models.NewForbiddenError("Only admin or direction staff can review applications")
	}
	return nil
}

func (c *Caller) id() *string {
	if c == nil || c.UserID == "" {
		return nil
	}
	id := c.UserID
	return &id
}

// StudentMirror copies a provisioned student to the student-records
// service and returns the id it assigned.
type StudentMirror interface {
	CreateStudent(ctx context.Context, s *models.Student, userID string) (string, error)
}

// ProvisioningConfig holds the account defaults applied on approval.
type ProvisioningConfig struct {
	StudentEmailDomain     string
	DefaultParentPassword  string
	DefaultStudentPassword string
	CodeTokenTTL           time.Duration
}

// ApplicationServiceDeps wires an ApplicationService. Mirror and Notifier
// may be nil.
type ApplicationServiceDeps struct {
	DB       *gorm.DB
	Hasher   PasswordHasher
	Mirror   StudentMirror
	Notifier notifications.Dispatcher
	Catalog  *notifications.Catalog
	Issuer   *auth.Issuer
	Flags    *featureflags.Manager
	Config   ProvisioningConfig
}

// ApplicationService orchestrates the admission lifecycle.
type ApplicationService struct {
	db       *gorm.DB
	apps     repository.ApplicationRepository
	students repository.StudentRepository
	users    repository.UserRepository
	hasher   PasswordHasher
	mirror   StudentMirror
	notifier notifications.Dispatcher
	catalog  *notifications.Catalog
	issuer   *auth.Issuer
	flags    *featureflags.Manager
	cfg      ProvisioningConfig

	now         func() time.Time
	studentCode func(time.Time) string
}

// NewApplicationService creates the admissions orchestrator.
func NewApplicationService(d ApplicationServiceDeps) *ApplicationService {
	hasher := d.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notifications.Nop
	}
	catalog := d.Catalog
	if catalog == nil {
		catalog = notifications.DefaultCatalog()
	}
	flags := d.Flags
	if flags == nil {
		flags = featureflags.NewManager(featureflags.CodeAccess + "=on," + featureflags.StudentMirror + "=on")
	}
	cfg := d.Config
	if cfg.CodeTokenTTL <= 0 {
		cfg.CodeTokenTTL = time.Hour
	}
	return &ApplicationService{
		db:          d.DB,
		apps:        repository.NewApplicationRepository(d.DB),
		students:    repository.NewStudentRepository(d.DB),
		users:       repository.NewUserRepository(d.DB),
		hasher:      hasher,
		mirror:      d.Mirror,
		notifier:    notifier,
		catalog:     catalog,
		issuer:      d.Issuer,
		flags:       flags,
		cfg:         cfg,
		now:         time.Now,
		studentCode: NewStudentCode,
	}
}

// Submit validates a raw payload and stores it as a pending application.
func (s *ApplicationService) Submit(ctx context.Context, raw map[string]any) (*models.Application, error) {
	now := s.now()
	app, err := NormalizeSubmission(raw).Validate(now)
	if err != nil {
		return nil, err
	}

	if body, err := json.Marshal(raw); err == nil {
		app.Submission = body
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}

	if _, known := SessionStart(app.Session, now); !known {
		slog.WarnContext(ctx, "unrecognized session label, using current date",
			slog.String("application_id", app.ID),
			slog.String("session", app.Session))
	}

	observability.ApplicationsSubmitted.Inc()
	slog.InfoContext(ctx, "application submitted",
		slog.String("application_id", app.ID),
		slog.String("program", app.Program),
		slog.String("session", app.Session))
	return app, nil
}

// Get returns one application with its documents.
func (s *ApplicationService) Get(ctx context.Context, id string, caller *Caller) (*models.Application, error) {
	if err := caller.authorizeReview(); err != nil {
		return nil, err
	}
	return s.apps.GetWithDocuments(ctx, id)
}

// List returns a page of applications and the total matching count.
func (s *ApplicationService) List(ctx context.Context, filter repository.ApplicationFilter, caller *Caller) ([]models.Application, int64, error) {
	if err := caller.authorizeReview(); err != nil {
		return nil, 0, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, models.NewInvalidEnumValueError("status", string(filter.Status))
	}
	return s.apps.List(ctx, filter)
}

// DocumentInput is the metadata of an uploaded admission document.
type DocumentInput struct {
	Type     string
	FileName string
	FileURL  string
	FileSize int64
	MimeType string
}

// AddDocument attaches document metadata. Reviewers may attach at any time;
// anonymous submitters only while the application is pending.
func (s *ApplicationService) AddDocument(ctx context.Context, applicationID string, in DocumentInput, caller *Caller) (*models.ApplicationDocument, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if authErr := caller.authorizeReview(); authErr != nil && app.Status != models.ApplicationStatusPending {
		return nil, authErr
	}

	in.FileName = strings.TrimSpace(in.FileName)
	in.FileURL = strings.TrimSpace(in.FileURL)
	if in.FileName == "" {
		return nil, models.NewMissingFieldError("fileName")
	}
	if in.FileURL == "" {
		return nil, models.NewMissingFieldError("fileUrl")
	}
	if in.FileSize < 0 {
		return nil, models.NewValidationError("fileSize cannot be negative")
	}

	doc := &models.ApplicationDocument{
		ApplicationID: app.ID,
		Type:          models.ParseDocumentType(in.Type),
		FileName:      in.FileName,
		FileURL:       in.FileURL,
		FileSize:      in.FileSize,
		MimeType:      strings.TrimSpace(in.MimeType),
		UploadedAt:    s.now().UTC(),
	}
	if err := s.apps.AddDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApprovalResult is everything provisioned by an approval.
type ApprovalResult struct {
	Student     *models.Student     `json:"student"`
	Application *models.Application `json:"application"`
	ParentUser  *models.User        `json:"parentUser"`
	StudentUser *models.User        `json:"studentUser"`
}

// Approve provisions a Student and its accounts from a pending application.
// The status flip, the Student and both accounts commit together; the
// mirror call and notifications run afterwards and never undo the commit.
func (s *ApplicationService) Approve(ctx context.Context, id string, caller *Caller) (result *ApprovalResult, err error) {
	defer func() { recordDecision("approve", err) }()

	if err := caller.authorizeReview(); err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "application.approve")
	defer span.End()
	span.AddAttributes(attribute.String("application.id", id))
	defer func() {
		if err != nil {
			span.SetError(err)
		}
	}()

	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch app.Status {
	case models.ApplicationStatusApproved:
		return nil, models.NewAlreadyApprovedError(app.ID)
	case models.ApplicationStatusRejected:
		return nil, models.NewAlreadyRejectedError(app.ID)
	}

	tuition := TuitionFor(app.Program)

	// Both hashes are computed outside the transaction.
	parentHash, err := s.hasher.Hash(s.cfg.DefaultParentPassword)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	studentHash, err := s.hasher.Hash(s.cfg.DefaultStudentPassword)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	studentEmail := StudentEmail(app.FirstName, app.LastName, s.cfg.StudentEmailDomain)

	now := s.now().UTC()
	result = &ApprovalResult{}
	started := time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		apps := repository.NewApplicationRepository(tx)
		students := repository.NewStudentRepository(tx)
		users := repository.NewUserRepository(tx)

		ok, err := apps.MarkApproved(ctx, app.ID, caller.id(), now)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewAlreadyApprovedError(app.ID)
		}

		student, err := s.createStudent(ctx, tx, students, studentFromApplication(app, tuition, now))
		if err != nil {
			return err
		}
		result.Student = student

		if app.ParentEmail != "" {
			parent, _, err := users.FindOrCreateByEmail(ctx, &models.User{
				Email:    app.ParentEmail,
				Password: parentHash,
				Role:     models.RoleParent,
				FullName: app.ParentName,
			})
			if err != nil {
				return err
			}
			result.ParentUser = parent
		}

		studentUser, _, err := users.FindOrCreateByEmail(ctx, &models.User{
			Email:     studentEmail,
			Password:  studentHash,
			Role:      models.RoleStudent,
			FullName:  app.FullName(),
			StudentID: &student.ID,
		})
		if err != nil {
			return err
		}
		result.StudentUser = studentUser

		return apps.LinkStudent(ctx, app.ID, student.ID)
	})
	observability.ApprovalDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}

	app.Status = models.ApplicationStatusApproved
	app.ReviewedAt = &now
	app.ReviewedByID = caller.id()
	app.StudentID = &result.Student.ID
	result.Application = app

	slog.InfoContext(ctx, "application approved",
		slog.String("application_id", app.ID),
		slog.String("student_id", result.Student.ID),
		slog.String("student_code", result.Student.StudentCode),
		slog.Float64("tuition", tuition))

	if s.mirror != nil && s.flags.Enabled(featureflags.StudentMirror, app.ID) {
		if mErr := s.mirrorStudent(ctx, result.Student, result.StudentUser); mErr != nil {
			observability.SideEffectFailures.WithLabelValues(observability.EffectMirror).Inc()
			observability.LogAsyncOperationError(ctx, "student_mirror", mErr, map[string]interface{}{
				"application_id": app.ID,
				"student_id":     result.Student.ID,
			})
		}
	}

	s.notifyApproval(ctx, app, result)
	return result, nil
}

// createStudent inserts st, drawing a fresh student code on collisions.
func (s *ApplicationService) createStudent(ctx context.Context, tx *gorm.DB, students repository.StudentRepository, st *models.Student) (*models.Student, error) {
	for attempt := 0; attempt < maxStudentCodeAttempts; attempt++ {
		st.StudentCode = s.studentCode(st.EnrollmentDate)
		if err := tx.SavePoint("student_code").Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		err := students.Create(ctx, st)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return nil, err
		}
		if rbErr := tx.RollbackTo("student_code").Error; rbErr != nil {
			return nil, models.NewInternalError(rbErr)
		}
	}
	return nil, models.NewInternalError(fmt.Errorf("no unique student code after %d attempts", maxStudentCodeAttempts))
}

func studentFromApplication(app *models.Application, tuition float64, now time.Time) *models.Student {
	appID := app.ID
	return &models.Student{
		FirstName:      app.FirstName,
		LastName:       app.LastName,
		DateOfBirth:    app.DateOfBirth,
		Gender:         app.Gender,
		Address:        app.Address,
		ParentName:     app.ParentName,
		ParentPhone:    app.ParentPhone,
		ParentEmail:    app.ParentEmail,
		Program:        app.Program,
		Session:        app.Session,
		SecondaryLevel: app.SecondaryLevel,
		Status:         models.StudentStatusActive,
		TuitionAmount:  tuition,
		EnrollmentDate: now,
		ApplicationID:  &appID,
	}
}

// mirrorStudent copies st to student-records and stores the returned id on
// both the Student and its account, including the in-memory user.
func (s *ApplicationService) mirrorStudent(ctx context.Context, st *models.Student, user *models.User) error {
	span, ctx := observability.NewSpan(ctx, "student.mirror")
	defer span.End()
	span.AddAttributes(attribute.String("student.id", st.ID))

	mirrorID, err := s.mirror.CreateStudent(ctx, st, user.ID)
	if err != nil {
		span.SetError(err)
		return err
	}
	if err := s.students.SetMirrorID(ctx, st.ID, mirrorID); err != nil {
		return err
	}
	if err := s.users.SetMirrorStudentID(ctx, st.ID, mirrorID); err != nil {
		return err
	}
	st.MirrorID = &mirrorID
	mirrored := mirrorID
	user.MirrorStudentID = &mirrored
	return nil
}

func (s *ApplicationService) notifyApproval(ctx context.Context, app *models.Application, r *ApprovalResult) {
	data := notifications.MessageData{
		StudentName:  app.FullName(),
		FirstName:    app.FirstName,
		StudentCode:  r.Student.StudentCode,
		StudentEmail: r.StudentUser.Email,
		Program:      app.Program,
		Session:      app.Session,
		Tuition:      r.Student.TuitionAmount,
	}
	if r.ParentUser != nil {
		s.dispatch(ctx, models.NotificationApplicationApproved, notifications.AudienceParent, r.ParentUser, app.ID, data)
	}
	s.dispatch(ctx, models.NotificationApplicationApproved, notifications.AudienceStudent, r.StudentUser, app.ID, data)
}

func (s *ApplicationService) dispatch(ctx context.Context, typ models.NotificationType, aud notifications.Audience, to *models.User, applicationID string, data notifications.MessageData) {
	ev, err := s.catalog.Build(typ, aud, to.ID, to.Email, applicationID, data)
	if err == nil {
		err = s.notifier.Notify(ctx, ev)
	}
	if err != nil {
		observability.SideEffectFailures.WithLabelValues(observability.EffectNotification).Inc()
		observability.LogAsyncOperationError(ctx, "notification_dispatch", err, map[string]interface{}{
			"application_id": applicationID,
			"user_id":        to.ID,
			"type":           string(typ),
		})
	}
}

// Reject declines a pending application and stores reason as its notes.
func (s *ApplicationService) Reject(ctx context.Context, id, reason string, caller *Caller) (app *models.Application, err error) {
	defer func() { recordDecision("reject", err) }()

	if err := caller.authorizeReview(); err != nil {
		return nil, err
	}

	app, err = s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := terminalError(app); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	now := s.now().UTC()
	ok, err := s.apps.MarkRejected(ctx, app.ID, reason, caller.id(), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := s.apps.GetByID(ctx, app.ID)
		if getErr != nil {
			return nil, getErr
		}
		if err := terminalError(current); err != nil {
			return nil, err
		}
		return nil, models.NewInternalError(fmt.Errorf("application %s was not updated", app.ID))
	}

	app.Status = models.ApplicationStatusRejected
	app.ReviewedAt = &now
	app.ReviewedByID = caller.id()
	app.Notes = reason

	if app.ParentEmail != "" {
		parent, lookupErr := s.users.GetByEmail(ctx, app.ParentEmail)
		if lookupErr != nil {
			slog.WarnContext(ctx, "parent lookup for rejection notice failed",
				slog.String("application_id", app.ID), slog.String("error", lookupErr.Error()))
		} else if parent != nil {
			s.dispatch(ctx, models.NotificationApplicationRejected, notifications.AudienceParent, parent, app.ID,
				notifications.MessageData{
					StudentName: app.FullName(),
					FirstName:   app.FirstName,
					Program:     app.Program,
					Session:     app.Session,
					Reason:      reason,
				})
		}
	}
	return app, nil
}

func terminalError(app *models.Application) error {
	switch app.Status {
	case models.ApplicationStatusApproved:
		return models.NewAlreadyApprovedError(app.ID)
	case models.ApplicationStatusRejected:
		return models.NewAlreadyRejectedError(app.ID)
	}
	return nil
}

// Delete removes an application and its documents.
func (s *ApplicationService) Delete(ctx context.Context, id string, caller *Caller) error {
	if err := caller.authorizeReview(); err != nil {
		return err
	}
	if err := s.apps.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "application deleted", slog.String("application_id", id))
	return nil
}

// AccessGrant is a session issued from an access code.
type AccessGrant struct {
	Token       string              `json:"token"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	User        *models.User        `json:"user"`
	Student     *models.Student     `json:"student"`
	Application *models.Application `json:"application"`
}

// AccessByCode exchanges the leading characters of an approved
// application's id for a student session.
func (s *ApplicationService) AccessByCode(ctx context.Context, code string) (grant *AccessGrant, err error) {
	defer func() {
		observability.CodeAccessAttempts.WithLabelValues(outcomeFor(err)).Inc()
	}()

	code = strings.TrimSpace(code)
	if utf8.RuneCountInString(code) != models.AccessCodeLength {
		return nil, models.NewInvalidCodeFormatError()
	}
	if !s.flags.Enabled(featureflags.CodeAccess, code) {
		return nil, models.NewForbiddenError("Code access is disabled")
	}

	matches, err := s.apps.FindByIDPrefix(ctx, code, 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, models.NewNotFoundError("Application", code)
	case 1:
	default:
		return nil, models.NewAmbiguousCodeError(len(matches))
	}

	app := &matches[0]
	if app.Status != models.ApplicationStatusApproved {
		return nil, models.NewNotApprovedError(app.Status)
	}
	if app.StudentID == nil || *app.StudentID == "" {
		return nil, models.NewNoLinkedStudentError()
	}
	user, err := s.users.GetByStudentID(ctx, *app.StudentID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNoUserAccountError()
	}
	student, err := s.students.GetByID(ctx, *app.StudentID)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(auth.ClaimsForUser(user), s.cfg.CodeTokenTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &AccessGrant{
		Token:       token,
		ExpiresAt:   expiresAt,
		User:        user,
		Student:     student,
		Application: app,
	}, nil
}

// Remirror retries the student-records copy for one approved application.
// Unlike the approval path the error is returned to the caller.
func (s *ApplicationService) Remirror(ctx context.Context, applicationID string, caller *Caller) (*models.Student, error) {
	if err := caller.authorizeReview(); err != nil {
		return nil, err
	}
	if s.mirror == nil {
		return nil, models.NewValidationError("Student-records mirroring is not configured")
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, models.NewNotApprovedError(app.Status)
	}
	if app.StudentID == nil {
		return nil, models.NewNoLinkedStudentError()
	}
	student, err := s.students.GetByID(ctx, *app.StudentID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByStudentID(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNoUserAccountError()
	}
	if err := s.mirrorStudent(ctx, student, user); err != nil {
		observability.SideEffectFailures.WithLabelValues(observability.EffectMirror).Inc()
		return nil, models.NewInternalError(err)
	}
	return student, nil
}

// ReconcileReport summarizes a bulk re-mirror run.
type ReconcileReport struct {
	Attempted int
	Mirrored  int
	Failed    map[string]string
}

// ReconcileMirrors re-mirrors up to limit students that have no
// student-records id.
func (s *ApplicationService) ReconcileMirrors(ctx context.Context, limit int) (*ReconcileReport, error) {
	if s.mirror == nil {
		return nil, models.NewValidationError("Student-records mirroring is not configured")
	}
	pending, err := s.students.ListUnmirrored(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Failed: make(map[string]string)}
	for i := range pending {
		st := &pending[i]
		report.Attempted++

		user, err := s.users.GetByStudentID(ctx, st.ID)
		if err != nil {
			report.Failed[st.ID] = err.Error()
			continue
		}
		if user == nil {
			report.Failed[st.ID] = models.NewNoUserAccountError().Error()
			continue
		}
		if err := s.mirrorStudent(ctx, st, user); err != nil {
			observability.SideEffectFailures.WithLabelValues(observability.EffectMirror).Inc()
			report.Failed[st.ID] = err.Error()
			continue
		}
		report.Mirrored++
	}
	return report, nil
}

func recordDecision(decision string, err error) {
	observability.ApplicationDecisions.WithLabelValues(decision, outcomeFor(err)).Inc()
}

func outcomeFor(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return observability.OutcomeError
	}
	switch appErr.Code {
	case models.CodeUnauthenticated, models.CodeForbidden:
		return observability.OutcomeDenied
	case models.CodeValidation, models.CodeInvalidCodeFormat, models.CodeInvalidDateOfBirth,
		models.CodeMissingField, models.CodeInvalidAgeForSecondary, models.CodeInvalidEnumValue:
		return observability.OutcomeInvalid
	case models.CodeInternal:
		return observability.OutcomeError
	default:
		return observability.OutcomeConflict
	}
}
