package echoapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"reflect"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/darslik/apps/api/echo"
	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/contact"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/testimonial"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
	"github.com/trezcool/darslik/services/email"
	"github.com/trezcool/darslik/services/importer"
	"github.com/trezcool/darslik/services/logger"
	"github.com/trezcool/darslik/storage/database/dummy"
	"github.com/trezcool/darslik/storage/memstore"
	testutil "github.com/trezcool/darslik/tests"
)

var (
	conf       *core.Config
	validate   *validator.Validate
	translator ut.Translator
	tokens     *echoapi.TokenIssuer

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

func TestMain(m *testing.M) {
	conf = &core.Config{
		AppName:          "Darslik",
		Env:              "TEST",
		TestMode:         true,
		WorkDir:          core.Getwd(),
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://frontend.test",
		DefaultFromEmail: mail.Address{Name: "Darslik", Address: "noreply@darslik.test"},
		ContactEmail:     mail.Address{Name: "Office", Address: "office@darslik.test"},
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			PasswordResetTimeoutDelta: time.Hour,
		},
		Media: core.MediaConfig{
			MaxUploadSize:  10 << 20,
			ImageMaxWidth:  200,
			ImageMaxHeight: 200,
		},
		Quiz: core.QuizConfig{SelectionTTL: time.Hour},
	}
	validate, translator = testutil.Validator()
	tokens = echoapi.NewTokenIssuer(conf)

	log := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, log)
	user.LoadCommonPasswords(log)

	os.Exit(m.Run())
}

// testApp is a server backed by a fresh in-memory database.
type testApp struct {
	srv *echoapi.Server

	usrRepo     user.Repository
	catRepo     catalog.Repository
	quizRepo    quiz.Repository
	torrensRepo torrens.Repository
	tstRepo     testimonial.Repository
	libRepo     library.Repository
}

func newTestApp(t *testing.T) *testApp {
	db := dummydb.Open()
	app := &testApp{
		usrRepo:     dummydb.NewUserRepository(db),
		catRepo:     dummydb.NewCatalogRepository(db),
		quizRepo:    dummydb.NewQuizRepository(db),
		torrensRepo: dummydb.NewTorrensRepository(db),
		tstRepo:     dummydb.NewTestimonialRepository(db),
		libRepo:     dummydb.NewLibraryRepository(db),
	}

	log := logsvc.NewDiscardLogger()
	media := testutil.Media(t)
	images := testutil.Images()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	catSvc := catalog.NewService(app.catRepo, media, nil /* converter */, log)

	app.srv = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     log,
		Validate:   validate,
		Translator: translator,
		Media:      media,

		UserSvc:        user.NewService(app.usrRepo, mailSvc, conf),
		CatalogSvc:     catSvc,
		QuizSvc:        quiz.NewService(app.quizRepo, catSvc, memstore.NewSelectionStore(time.Hour), log, nil),
		TorrensSvc:     torrens.NewService(app.torrensRepo, media, images, log),
		TestimonialSvc: testimonial.NewService(app.tstRepo, media, images),
		LibrarySvc:     library.NewService(app.libRepo, media),
		ContactSvc:     contact.NewService(mailSvc, conf),

		QuestionsImporter: importer.NewXLSXImporter(""),
	})
	emailsvc.ResetSentMessages()
	return app
}

func (app *testApp) staff(t *testing.T) (user.User, string) {
	usr := testutil.CreateUser(t, app.usrRepo, "Staff", "staff", "staff@test.uz", "", []string{user.RoleStaff}, true)
	return usr, getToken(t, usr)
}

func (app *testApp) learner(t *testing.T, uname string) (user.User, string) {
	usr := testutil.CreateUser(t, app.usrRepo, "Learner "+uname, uname, uname+"@test.uz", "", []string{user.RoleLearner}, true)
	return usr, getToken(t, usr)
}

func (app *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

// run runs the table of httpTests against the app.
func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// formFile is a file part of a multipart request.
type formFile struct {
	field, filename string
	data            []byte
}

func newMultipartRequest(t *testing.T, method, path, token string, fields map[string][]string, files ...formFile) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, vals := range fields {
		for _, v := range vals {
			if err := w.WriteField(k, v); err != nil {
				t.Fatalf("newMultipartRequest(): %v", err)
			}
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("newMultipartRequest(): %v", err)
		}
		if _, err = io.Copy(part, bytes.NewReader(f.data)); err != nil {
			t.Fatalf("newMultipartRequest(): %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("newMultipartRequest(): %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func getToken(t *testing.T, usr user.User) string {
	token, err := tokens.Token(usr)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList(): %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshall(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v (body %s)", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}
