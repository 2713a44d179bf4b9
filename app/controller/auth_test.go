package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edermartinez/bienesraices/app/controller"
	"github.com/edermartinez/bienesraices/app/entity"
	"github.com/edermartinez/bienesraices/app/middleware"
	"github.com/edermartinez/bienesraices/app/service"
	"github.com/edermartinez/bienesraices/app/view"
	"github.com/edermartinez/bienesraices/config"

	"github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	seq   uint64
	users map[string]*entity.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*entity.User)}
}

func (r *memoryUserRepo) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Email]; exists {
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}
	r.seq++
	user.ID = r.seq
	stored := *user
	r.users[user.Email] = &stored
	return nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[email]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (r *memoryUserRepo) FindByToken(_ context.Context, token string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user := r.lookupByToken(token); user != nil {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

func (r *memoryUserRepo) ConfirmByToken(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.lookupByToken(token)
	if user == nil {
		return false, nil
	}
	user.Confirmado = true
	user.Token.Valid = false
	user.Token.String = ""
	return true, nil
}

func (r *memoryUserRepo) AssignToken(_ context.Context, email, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[email]
	if !ok {
		return false, nil
	}
	user.Token.Valid = true
	user.Token.String = token
	return true, nil
}

func (r *memoryUserRepo) SetPasswordByToken(_ context.Context, token, passwordHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.lookupByToken(token)
	if user == nil {
		return false, nil
	}
	user.PasswordHash = passwordHash
	user.Token.Valid = false
	user.Token.String = ""
	return true, nil
}

func (r *memoryUserRepo) lookupByToken(token string) *entity.User {
	for _, user := range r.users {
		if user.Token.Valid && user.Token.String == token {
			return user
		}
	}
	return nil
}

func (r *memoryUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type sentMail struct {
	nombre string
	email  string
	token  string
}

type fakeMailer struct {
	mu            sync.Mutex
	confirmations []sentMail
	resets        []sentMail
}

func (m *fakeMailer) SendAccountConfirmation(_ context.Context, nombre, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, sentMail{nombre, email, token})
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, nombre, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, sentMail{nombre, email, token})
	return nil
}

type fakePropertyLister struct {
	properties []entity.Property
}

func (f *fakePropertyLister) ListByOwner(_ context.Context, _ uint64) ([]entity.Property, error) {
	return f.properties, nil
}

type testApp struct {
	e      *echo.Echo
	repo   *memoryUserRepo
	mailer *fakeMailer
	svc    *service.AuthService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	repo := newMemoryUserRepo()
	mailer := &fakeMailer{}
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		SessionTokenTTL: time.Hour,
		BaseURL:         "http://localhost:3000",
	}
	svc := service.NewAuthService(repo, mailer, cfg,
		service.WithAsyncRunner(func(task func()) { task() }))

	e := echo.New()
	e.HideBanner = true
	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	e.Renderer = renderer

	authController := controller.NewAuthController(svc, cfg)
	propertyController := controller.NewPropertyController(&fakePropertyLister{})
	authMiddleware := middleware.NewAuthMiddleware(svc)

	auth := e.Group("/auth")
	auth.GET("/login", authController.LoginForm)
	auth.POST("/login", authController.Login)
	auth.GET("/registro", authController.RegisterForm)
	auth.POST("/registro", authController.Register)
	auth.GET("/confirmar/:token", authController.Confirm)
	auth.GET("/olvide-password", authController.ForgotPasswordForm)
	auth.POST("/olvide-password", authController.ForgotPassword)
	auth.GET("/olvide-password/:token", authController.ResetPasswordForm)
	auth.POST("/olvide-password/:token", authController.ResetPassword)
	auth.POST("/cerrar-sesion", authController.Logout)

	protected := e.Group("", authMiddleware.RequireAuth)
	protected.GET("/mis-propiedades", propertyController.MisPropiedades)

	return &testApp{e: e, repo: repo, mailer: mailer, svc: svc}
}

func (a *testApp) postForm(t *testing.T, path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == controller.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", controller.SessionCookieName)
	return nil
}

func TestRegisterValidationCollectsAllErrors(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/registro", url.Values{
		"nombre":           {""},
		"email":            {"not-an-email"},
		"password":         {"abc"},
		"repetir_password": {"abd"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, mensaje := range []string{
		"El nombre es obligatorio",
		"El email es obligatorio",
		"El password es obligatorio y debe ser minimo de 6 caracteres",
		"Los passwords no son iguales",
	} {
		if !strings.Contains(body, mensaje) {
			t.Fatalf("body missing %q:\n%s", mensaje, body)
		}
	}
	if app.repo.count() != 0 {
		t.Fatalf("store must not be touched on validation failure")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	values := url.Values{
		"nombre":           {"Ana"},
		"email":            {"ana@x.com"},
		"password":         {"secret1"},
		"repetir_password": {"secret1"},
	}

	if rec := app.postForm(t, "/auth/registro", values); rec.Code != http.StatusOK {
		t.Fatalf("first register: expected 200, got %d", rec.Code)
	}

	rec := app.postForm(t, "/auth/registro", values)
	if !strings.Contains(rec.Body.String(), "El usuario ya esta registrado") {
		t.Fatalf("expected duplicate message, got:\n%s", rec.Body.String())
	}
	if app.repo.count() != 1 {
		t.Fatalf("expected store to keep a single row, got %d", app.repo.count())
	}
}

func TestRegisterPaddedEmailKeepsOneRow(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/registro", url.Values{
		"nombre":           {"Ana"},
		"email":            {"  Ana@X.com  "},
		"password":         {"secret1"},
		"repetir_password": {"secret1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("padded register: expected 200, got %d", rec.Code)
	}

	stored, _ := app.repo.FindByEmail(context.Background(), "ana@x.com")
	if stored == nil {
		t.Fatalf("expected the padded address stored in canonical form")
	}

	// The bare variant is the same account, not a second row.
	rec = app.postForm(t, "/auth/registro", url.Values{
		"nombre":           {"Otra Ana"},
		"email":            {"ana@x.com"},
		"password":         {"distinto7"},
		"repetir_password": {"distinto7"},
	})
	if !strings.Contains(rec.Body.String(), "El usuario ya esta registrado") {
		t.Fatalf("expected duplicate message, got:\n%s", rec.Body.String())
	}
	if app.repo.count() != 1 {
		t.Fatalf("expected a single row for one effective address, got %d", app.repo.count())
	}

	// And the bare variant logs in to the account registered padded.
	rec = app.get(t, "/auth/confirmar/"+app.mailer.confirmations[0].token)
	if !strings.Contains(rec.Body.String(), "Tu cuenta ha sido confirmada correctamente") {
		t.Fatalf("confirm failed:\n%s", rec.Body.String())
	}
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"secret1"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected login redirect, got %d:\n%s", rec.Code, rec.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/login", url.Values{
		"email":    {"bad"},
		"password": {""},
	})

	body := rec.Body.String()
	if !strings.Contains(body, "El email es obligatorio") || !strings.Contains(body, "El password es obligatorio") {
		t.Fatalf("expected both validation messages, got:\n%s", body)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/login", url.Values{
		"email":    {"nadie@x.com"},
		"password": {"secret1"},
	})

	if !strings.Contains(rec.Body.String(), "El usuario no existe") {
		t.Fatalf("expected unknown user message, got:\n%s", rec.Body.String())
	}
	// The form keeps the submitted email so the user only retypes the password.
	if !strings.Contains(rec.Body.String(), `value="nadie@x.com"`) {
		t.Fatalf("expected email echoed back in the form, got:\n%s", rec.Body.String())
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/auth/confirmar/no-such-token")
	if !strings.Contains(rec.Body.String(), "Hubo un error al confirmar tu cuenta") {
		t.Fatalf("expected confirm error page, got:\n%s", rec.Body.String())
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/olvide-password", url.Values{
		"email": {"nadie@x.com"},
	})

	if !strings.Contains(rec.Body.String(), "El email no pertenece a ningun usuario") {
		t.Fatalf("expected unknown email message, got:\n%s", rec.Body.String())
	}
}

func TestAnaScenario(t *testing.T) {
	app := newTestApp(t)

	// Register("Ana","ana@x.com","secret1","secret1")
	rec := app.postForm(t, "/auth/registro", url.Values{
		"nombre":           {"Ana"},
		"email":            {"ana@x.com"},
		"password":         {"secret1"},
		"repetir_password": {"secret1"},
	})
	if !strings.Contains(rec.Body.String(), "Hemos enviado un email de confirmacion") {
		t.Fatalf("expected acknowledgment page, got:\n%s", rec.Body.String())
	}
	if len(app.mailer.confirmations) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(app.mailer.confirmations))
	}
	token := app.mailer.confirmations[0].token

	// Login before confirmation is rejected regardless of the password.
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"secret1"},
	})
	if !strings.Contains(rec.Body.String(), "Tu cuenta no ha sido confirmada") {
		t.Fatalf("expected unconfirmed message, got:\n%s", rec.Body.String())
	}

	// ConfirmAccount(T1)
	rec = app.get(t, "/auth/confirmar/"+token)
	if !strings.Contains(rec.Body.String(), "Tu cuenta ha sido confirmada correctamente") {
		t.Fatalf("expected confirmation page, got:\n%s", rec.Body.String())
	}

	// Login with the wrong password.
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"wrong"},
	})
	if !strings.Contains(rec.Body.String(), "El password es incorrecto") {
		t.Fatalf("expected wrong password message, got:\n%s", rec.Body.String())
	}

	// Login with the correct password sets the session cookie and redirects.
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"secret1"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/mis-propiedades" {
		t.Fatalf("expected redirect to /mis-propiedades, got %q", loc)
	}

	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("session cookie missing attributes: %+v", cookie)
	}
	claims, err := app.svc.ValidateSessionToken(cookie.Value)
	if err != nil {
		t.Fatalf("session cookie does not validate: %v", err)
	}
	if claims.Nombre != "Ana" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// The session grants access to the listings page.
	rec = app.get(t, "/mis-propiedades", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Hola Ana") {
		t.Fatalf("expected greeting, got:\n%s", rec.Body.String())
	}
}

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/registro", url.Values{
		"nombre":           {"Ana"},
		"email":            {"ana@x.com"},
		"password":         {"secret1"},
		"repetir_password": {"secret1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d", rec.Code)
	}
	app.get(t, "/auth/confirmar/"+app.mailer.confirmations[0].token)

	rec = app.postForm(t, "/auth/olvide-password", url.Values{
		"email": {"ana@x.com"},
	})
	if !strings.Contains(rec.Body.String(), "Hemos enviado un email con las instrucciones") {
		t.Fatalf("expected reset acknowledgment, got:\n%s", rec.Body.String())
	}
	if len(app.mailer.resets) != 1 {
		t.Fatalf("expected 1 reset email, got %d", len(app.mailer.resets))
	}
	token := app.mailer.resets[0].token

	// The token renders the new password form without consuming it.
	rec = app.get(t, "/auth/olvide-password/"+token)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Restablece tu password") {
		t.Fatalf("expected reset form, got %d:\n%s", rec.Code, rec.Body.String())
	}

	// A short password is rejected before the store is touched.
	rec = app.postForm(t, "/auth/olvide-password/"+token, url.Values{
		"password": {"abc"},
	})
	if !strings.Contains(rec.Body.String(), "El password es obligatorio y debe ser minimo de 6 caracteres") {
		t.Fatalf("expected short password message, got:\n%s", rec.Body.String())
	}

	rec = app.postForm(t, "/auth/olvide-password/"+token, url.Values{
		"password": {"nuevo-pass7"},
	})
	if !strings.Contains(rec.Body.String(), "El password se ha modificado correctamente") {
		t.Fatalf("expected reset success page, got:\n%s", rec.Body.String())
	}

	// The token was consumed with the update.
	rec = app.postForm(t, "/auth/olvide-password/"+token, url.Values{
		"password": {"otro-pass7"},
	})
	if !strings.Contains(rec.Body.String(), "Hubo un error al comprobar tu identidad") {
		t.Fatalf("expected consumed token page, got:\n%s", rec.Body.String())
	}

	// Old password no longer works, the new one does.
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"secret1"},
	})
	if !strings.Contains(rec.Body.String(), "El password es incorrecto") {
		t.Fatalf("expected old password to be rejected, got:\n%s", rec.Body.String())
	}
	rec = app.postForm(t, "/auth/login", url.Values{
		"email":    {"ana@x.com"},
		"password": {"nuevo-pass7"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected login with new password to succeed, got %d", rec.Code)
	}
}

func TestResetFormUnknownToken(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/auth/olvide-password/no-such-token")
	if !strings.Contains(rec.Body.String(), "Hubo un error al comprobar tu identidad") {
		t.Fatalf("expected identity error page, got:\n%s", rec.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	app := newTestApp(t)

	rec := app.postForm(t, "/auth/cerrar-sesion", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	cookie := sessionCookie(t, rec)
	if cookie.Value != "" || cookie.MaxAge != -1 {
		t.Fatalf("expected expired empty cookie, got %+v", cookie)
	}
}
