package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/repository"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/jobs"
)

type reportRepoStub struct {
	jobs    map[string]*models.ReportJob
	deleted []string
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var queued []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) ListByCreator(ctx context.Context, userID string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.CreatedBy == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.jobs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type queueStub struct {
	jobs   []jobs.Job
	err    error
	waited int
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) EnqueueWait(ctx context.Context, job jobs.Job) error {
	q.waited++
	q.jobs = append(q.jobs, job)
	return nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *exportFixture) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exports := newExportFixture(t)
	svc := NewReportService(repo, exports.courses, queue, exports.svc, &recordingActivity{}, NewMetricsService(), zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
	})
	return svc, repo, queue, exports
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{CourseID: "c-1", Format: "PDF"}, lecturerClaims("lect-1"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.ID, queue.jobs[0].ID)

	stored := repo.jobs[resp.ID]
	assert.Equal(t, models.ReportTypeAttendance, stored.Type)
	assert.Equal(t, models.ReportFormatPDF, stored.Params.Format)
	assert.Equal(t, "lect-1", stored.CreatedBy)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc, _, queue, _ := newReportServiceForTest(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, dto.ReportRequest{}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{CourseID: "c-1", Format: models.ReportFormatJSON}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{CourseID: "c-1", Type: "grades"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{CourseID: "c-1"}, lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{CourseID: "missing"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue reports not started")

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{CourseID: "c-1"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, "failed to enqueue job", *job.ErrorMessage)
	}
}

func TestReportServiceCreateJobQueueFull(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = jobs.ErrQueueFull

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{CourseID: "c-1"}, adminClaims())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, appErrors.FromError(err).Status)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, "export queue is full", *job.ErrorMessage)
	}
}

func TestReportServiceGetStatusAndList(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	url := "/api/v1/export/token"
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAttendance, Status: models.ReportStatusProcessing, Progress: 10, CreatedBy: "lect-1", ResultURL: &url}
	ctx := context.Background()

	resp, err := svc.GetStatus(ctx, "job-1", lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Progress)
	assert.Nil(t, resp.ResultURL)

	repo.jobs["job-1"].Status = models.ReportStatusFinished
	resp, err = svc.GetStatus(ctx, "job-1", adminClaims())
	require.NoError(t, err)
	require.NotNil(t, resp.ResultURL)
	assert.Equal(t, url, *resp.ResultURL)

	_, err = svc.GetStatus(ctx, "job-1", lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetStatus(ctx, "nope", adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	listed, err := svc.List(ctx, lecturerClaims("lect-1"), 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exports := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-download",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{CourseID: "c-1", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "admin-1",
	}
	repo.jobs[job.ID] = job
	result, err := exports.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.RelativePath, download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	require.NoError(t, download.File.Close())

	_, err = svc.ResolveDownload(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, exports.svc.Delete(result.RelativePath))
	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceGiveUpAndRecover(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Status: models.ReportStatusQueued, Type: models.ReportTypeAttendance}
	repo.jobs["job-2"] = &models.ReportJob{ID: "job-2", Status: models.ReportStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "job-1", queue.jobs[0].ID)
	assert.Equal(t, 1, queue.waited)

	svc.GiveUp(jobs.Job{ID: "job-1"}, errors.New("renderer exploded"))
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	assert.Equal(t, "renderer exploded", *repo.jobs["job-1"].ErrorMessage)
	assert.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestReportServiceCleanupExpired(t *testing.T) {
	svc, repo, _, exports := newReportServiceForTest(t)
	old := &models.ReportJob{ID: "job-old", Type: models.ReportTypeAttendance, Params: models.ReportJobParams{CourseID: "c-1", Format: models.ReportFormatCSV}}
	repo.jobs[old.ID] = old
	result, err := exports.svc.Generate(context.Background(), old)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	old.Status = models.ReportStatusFinished
	old.FinishedAt = &finished
	old.ResultURL = &result.URL

	fresh := time.Now()
	repo.jobs["job-new"] = &models.ReportJob{ID: "job-new", Status: models.ReportStatusFinished, FinishedAt: &fresh}

	removed := svc.CleanupExpired(context.Background())
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"job-old"}, repo.deleted)
	assert.Contains(t, repo.jobs, "job-new")

	_, err = exports.svc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAttendance, Status: models.ReportStatusQueued}
	metrics := NewMetricsService()
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, metrics, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "/api/v1/export/token", *job.ResultURL)
	assert.NotNil(t, job.FinishedAt)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "vanished"}))
}

func TestReportWorkerHandleFailureRequeues(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAttendance, Status: models.ReportStatusQueued}
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "boom", *job.ErrorMessage)
}
