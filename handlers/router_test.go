package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/permissions"
	"github.com/camden-git/labelsysbackend/services"
)

type routerFixture struct {
	accounts    *mockAccounts
	projects    *mockProjects
	classes     *mockClasses
	assignments *mockAssignments
	images      *mockImages
	exporter    *mockExporter
	handler     http.Handler

	admin     *models.User
	annotator *models.User
	project   *models.Project
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		accounts:    &mockAccounts{},
		projects:    &mockProjects{},
		classes:     &mockClasses{},
		assignments: &mockAssignments{},
		images:      &mockImages{},
		exporter:    &mockExporter{},
		admin:       &models.User{ID: uuid.New(), Username: "root", IsAdmin: true},
		annotator:   &models.User{ID: uuid.New(), Username: "alice"},
		project:     &models.Project{ID: uuid.New(), Name: "pets"},
	}
	f.accounts.On("Authenticate", mock.Anything, "admin-token").Return(f.admin, nil).Maybe()
	f.accounts.On("Authenticate", mock.Anything, "alice-token").Return(f.annotator, nil).Maybe()
	f.accounts.On("Authenticate", mock.Anything, mock.Anything).
		Return(nil, apperr.New(apperr.CodeUnauthorized, "invalid token")).Maybe()

	f.projects.On("Membership", mock.Anything, f.project.ID, f.admin.ID).Return(nil, nil).Maybe()
	f.projects.On("Get", mock.Anything, f.project.ID).Return(f.project, nil).Maybe()

	f.handler = NewRouter(RouterDeps{
		Accounts:          f.accounts,
		Projects:          f.projects,
		Classes:           f.classes,
		Assignments:       f.assignments,
		Images:            f.images,
		Exporter:          f.exporter,
		DefaultTrainRatio: 0.8,
	})
	t.Cleanup(func() {
		f.classes.AssertExpectations(t)
		f.assignments.AssertExpectations(t)
		f.images.AssertExpectations(t)
		f.exporter.AssertExpectations(t)
	})
	return f
}

func (f *routerFixture) memberAs(user *models.User, role string) {
	f.projects.On("Membership", mock.Anything, f.project.ID, user.ID).
		Return(&models.ProjectMember{ProjectID: f.project.ID, UserID: user.ID, Role: role}, nil)
}

func (f *routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) projectPath(suffix string) string {
	return "/api/projects/" + f.project.ID.String() + suffix
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	return resp.Errors[0]
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/projects", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = f.do(http.MethodGet, "/api/projects", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "401", decodeError(t, rec).Status)
}

func TestRouter_AdminRoutesRejectAnnotators(t *testing.T) {
	f := newRouterFixture(t)
	f.memberAs(f.annotator, permissions.RoleAnnotator)

	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/projects"},
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPatch, "/api/admin/users/" + f.annotator.ID.String()},
		{http.MethodPut, f.projectPath("")},
		{http.MethodPost, f.projectPath("/classes")},
		{http.MethodPost, f.projectPath("/images/auto-assign")},
		{http.MethodPost, f.projectPath("/export/download")},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := f.do(tc.method, tc.path, "alice-token", `{}`)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "forbidden", decodeError(t, rec).Code)
		})
	}
}

func TestRouter_AdminUpdatesUser(t *testing.T) {
	f := newRouterFixture(t)
	off := false
	deactivated := &models.User{ID: f.annotator.ID, Username: "alice"}
	f.accounts.On("UpdateUser", mock.Anything, f.annotator.ID, services.UserUpdate{IsActive: &off}).
		Return(deactivated, nil).Once()

	rec := f.do(http.MethodPatch, "/api/admin/users/"+f.annotator.ID.String(), "admin-token", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.IsActive)

	missing := uuid.New()
	f.accounts.On("UpdateUser", mock.Anything, missing, services.UserUpdate{}).
		Return(nil, apperr.NotFound("user")).Once()
	rec = f.do(http.MethodPatch, "/api/admin/users/"+missing.String(), "admin-token", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPatch, "/api/admin/users/not-a-uuid", "admin-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.accounts.AssertExpectations(t)
}

func TestRouter_AdminUpdatesProject(t *testing.T) {
	f := newRouterFixture(t)
	name := "dogs"
	renamed := &models.Project{ID: f.project.ID, Name: name}
	f.projects.On("Update", mock.Anything, f.project.ID, &name, (*string)(nil)).Return(renamed, nil).Once()

	rec := f.do(http.MethodPut, f.projectPath(""), "admin-token", `{"name":"dogs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "dogs", got.Name)

	blank := " "
	f.projects.On("Update", mock.Anything, f.project.ID, &blank, (*string)(nil)).
		Return(nil, apperr.Invalid("project name is required")).Once()
	rec = f.do(http.MethodPut, f.projectPath(""), "admin-token", `{"name":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid", decodeError(t, rec).Code)
	f.projects.AssertExpectations(t)
}

func TestRouter_NonMemberIsForbidden(t *testing.T) {
	f := newRouterFixture(t)
	f.projects.On("Membership", mock.Anything, f.project.ID, f.annotator.ID).Return(nil, nil)

	rec := f.do(http.MethodGet, f.projectPath("/classes"), "alice-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_UnknownProjectIsNotFoundForAdmins(t *testing.T) {
	f := newRouterFixture(t)
	missing := uuid.New()
	f.projects.On("Membership", mock.Anything, missing, f.admin.ID).Return(nil, nil)
	f.projects.On("Get", mock.Anything, missing).Return(nil, apperr.NotFound("project"))

	rec := f.do(http.MethodGet, "/api/projects/"+missing.String()+"/classes", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "project not found", decodeError(t, rec).Detail)
}

func TestRouter_ErrorMapping(t *testing.T) {
	f := newRouterFixture(t)
	userID := uuid.New()

	f.classes.On("CreateClass", mock.Anything, f.project.ID, "cat", "").
		Return(nil, apperr.New(apperr.CodeDuplicateName, "class name already in use"))
	rec := f.do(http.MethodPost, f.projectPath("/classes"), "admin-token", `{"name":"cat"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_name", decodeError(t, rec).Code)

	f.assignments.On("ManualAssign", mock.Anything, f.project.ID, userID, mock.Anything).
		Return(0, apperr.New(apperr.CodeNotAMember, "user is not a member of the project").WithMeta("user_id", userID.String()))
	rec = f.do(http.MethodPost, f.projectPath("/images/assign"), "admin-token", `{"user_id":"`+userID.String()+`","image_ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, "not_a_member", detail.Code)
	assert.Equal(t, userID.String(), detail.Meta["user_id"])

	f.classes.On("ListClasses", mock.Anything, f.project.ID).Return(nil, errors.New("disk on fire"))
	rec = f.do(http.MethodGet, f.projectPath("/classes"), "admin-token", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail = decodeError(t, rec)
	assert.Equal(t, "internal", detail.Code)
	assert.NotContains(t, detail.Detail, "disk")
}

func TestRouter_ImageAccessFollowsAssignment(t *testing.T) {
	f := newRouterFixture(t)
	f.memberAs(f.annotator, permissions.RoleAnnotator)
	mine, theirs := uuid.New(), uuid.New()
	f.assignments.On("IsAssignedTo", mock.Anything, mine, f.annotator.ID).Return(true, nil)
	f.assignments.On("IsAssignedTo", mock.Anything, theirs, f.annotator.ID).Return(false, nil)
	f.images.On("Get", mock.Anything, f.project.ID, mine).
		Return(&models.Image{ID: mine, ProjectID: f.project.ID, Filename: "a.jpg"}, nil)

	rec := f.do(http.MethodGet, f.projectPath("/images/"+mine.String()), "alice-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, f.projectPath("/images/"+theirs.String()), "alice-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_ReviewerSeesEveryImage(t *testing.T) {
	f := newRouterFixture(t)
	f.memberAs(f.annotator, permissions.RoleReviewer)
	imageID := uuid.New()
	f.images.On("Get", mock.Anything, f.project.ID, imageID).
		Return(&models.Image{ID: imageID, ProjectID: f.project.ID}, nil)

	rec := f.do(http.MethodGet, f.projectPath("/images/"+imageID.String()), "alice-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	f.assignments.AssertNotCalled(t, "IsAssignedTo", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouter_ExportDownload(t *testing.T) {
	f := newRouterFixture(t)
	f.exporter.On("Project", mock.Anything, f.project.ID).Return(f.project, nil)
	f.exporter.On("ArchiveName", f.project).Return("pets_dataset.zip")
	f.exporter.On("Export", mock.Anything, f.project.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			_, _ = args.Get(2).(io.Writer).Write([]byte("PK"))
		}).
		Return(nil)

	rec := f.do(http.MethodPost, f.projectPath("/export/download"), "admin-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=pets_dataset.zip", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK", rec.Body.String())
}

func TestRouter_ListRoles(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/roles", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []permissions.RoleDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &roles))
	require.Len(t, roles, len(permissions.DefinedRoles))
	assert.Equal(t, permissions.RoleAnnotator, roles[0].Key)
}

func TestRouter_WebsocketTokenFromQuery(t *testing.T) {
	f := newRouterFixture(t)
	var seen *models.User
	f.handler = NewRouter(RouterDeps{
		Accounts: f.accounts,
		Projects: f.projects,
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = CurrentUser(r)
			w.WriteHeader(http.StatusNoContent)
		}),
	})

	rec := f.do(http.MethodGet, "/ws?token=alice-token", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, f.annotator.ID, seen.ID)

	rec = f.do(http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_WebsocketProjectScope(t *testing.T) {
	f := newRouterFixture(t)
	f.projects.On("Membership", mock.Anything, f.project.ID, f.annotator.ID).Return(nil, nil)
	f.handler = NewRouter(RouterDeps{
		Accounts: f.accounts,
		Projects: f.projects,
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	})

	rec := f.do(http.MethodGet, "/ws?project_id="+f.project.ID.String(), "alice-token", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/ws?project_id=nope", "alice-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/ws?project_id="+f.project.ID.String(), "admin-token", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
