package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

// memDB is an in-memory stand-in for the Postgres tables used by the login flow
type memDB struct {
	mu sync.Mutex

	profiles   map[uuid.UUID]model.Profile
	licenses   map[uuid.UUID]model.License // keyed by profile id
	pregen     map[uuid.UUID]model.PreGeneratedAccount
	sessions   map[uuid.UUID]model.Session
	masters    map[uuid.UUID]model.MasterCredential
	masterPass map[uuid.UUID]string
	identities map[string]model.IdentityUser
	idPass     map[uuid.UUID]string

	licenseCreates int
	expiryWrites   int
	identityCalls  int
	failIdentity   error
	profileCreates int
	linkWrites     int
	signIns        int
	// failSignIn, when set, is asked before the n-th sign-in attempt
	failSignIn func(n int) error
}

func newMemDB() *memDB {
	return &memDB{
		profiles:   map[uuid.UUID]model.Profile{},
		licenses:   map[uuid.UUID]model.License{},
		pregen:     map[uuid.UUID]model.PreGeneratedAccount{},
		sessions:   map[uuid.UUID]model.Session{},
		masters:    map[uuid.UUID]model.MasterCredential{},
		masterPass: map[uuid.UUID]string{},
		identities: map[string]model.IdentityUser{},
		idPass:     map[uuid.UUID]string{},
	}
}

func (db *memDB) addPreGenerated(username, key, accountType string, duration *int) model.PreGeneratedAccount {
	db.mu.Lock()
	defer db.mu.Unlock()
	a := model.PreGeneratedAccount{
		ID:          uuid.New(),
		Username:    username,
		LicenseKey:  key,
		AccountType: accountType,
		Duration:    duration,
		CreatedAt:   time.Now(),
	}
	db.pregen[a.ID] = a
	return a
}

func (db *memDB) addMaster(username, password, displayName string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m := model.MasterCredential{ID: uuid.New(), Username: username, DisplayName: displayName, Active: true}
	db.masters[m.ID] = m
	db.masterPass[m.ID] = password
}

func (db *memDB) addRegular(username, key string, professionalID *string, lic model.License) model.Profile {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := model.Profile{ID: uuid.New(), Username: username, FullName: username, ProfessionalID: professionalID}
	db.profiles[p.ID] = p
	lic.ID = uuid.New()
	lic.ProfileID = p.ID
	lic.LicenseKey = key
	if lic.Status == "" {
		lic.Status = model.LicenseActive
	}
	db.licenses[p.ID] = lic
	return p
}

func (db *memDB) pregenAccount(id uuid.UUID) model.PreGeneratedAccount {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pregen[id]
}

func (db *memDB) profileByUsername(username string) (model.Profile, bool) {
	for _, p := range db.profiles {
		if strings.EqualFold(p.Username, username) {
			return p, true
		}
	}
	return model.Profile{}, false
}

func (db *memDB) license(profileID uuid.UUID) (model.License, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.licenses[profileID]
	return l, ok
}

func (db *memDB) sessionCount(profileID uuid.UUID) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, s := range db.sessions {
		if s.ProfileID == profileID {
			n++
		}
	}
	return n
}

type fakeProfiles struct{ db *memDB }

func (f fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (model.Profile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profiles[id]
	if !ok {
		return model.Profile{}, repo.ErrNotFound
	}
	return p, nil
}

func (f fakeProfiles) GetByUsername(_ context.Context, username string) (model.Profile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profileByUsername(username)
	if !ok {
		return model.Profile{}, repo.ErrNotFound
	}
	return p, nil
}

func (f fakeProfiles) GetByIdentityUserID(_ context.Context, id uuid.UUID) (model.Profile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, p := range f.db.profiles {
		if p.IdentityUserID != nil && *p.IdentityUserID == id {
			return p, nil
		}
	}
	return model.Profile{}, repo.ErrNotFound
}

func (f fakeProfiles) GetOrCreate(_ context.Context, p model.Profile) (model.Profile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.profileCreates++
	if existing, ok := f.db.profileByUsername(p.Username); ok {
		return existing, nil
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	f.db.profiles[p.ID] = p
	return p, nil
}

func (f fakeProfiles) LinkIdentity(_ context.Context, profileID, identityUserID uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profiles[profileID]
	if !ok {
		return repo.ErrNotFound
	}
	p.IdentityUserID = &identityUserID
	f.db.profiles[profileID] = p
	f.db.linkWrites++
	return nil
}

type fakeLicenses struct{ db *memDB }

func (f fakeLicenses) GetByProfileID(_ context.Context, profileID uuid.UUID) (model.License, error) {
	l, ok := f.db.license(profileID)
	if !ok {
		return model.License{}, repo.ErrNotFound
	}
	return l, nil
}

func (f fakeLicenses) Create(_ context.Context, nl model.NewLicense) (model.License, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.insertLicense(nl), nil
}

func (db *memDB) insertLicense(nl model.NewLicense) model.License {
	if l, ok := db.licenses[nl.ProfileID]; ok {
		return l
	}
	started := nl.StartedAt
	l := model.License{
		ID:         uuid.New(),
		ProfileID:  nl.ProfileID,
		LicenseKey: nl.LicenseKey,
		Type:       nl.Type,
		Status:     model.LicenseActive,
		StartedAt:  &started,
		ExpiresAt:  nl.ExpiresAt,
		CreatedAt:  started,
	}
	db.licenses[nl.ProfileID] = l
	db.licenseCreates++
	return l
}

func (f fakeLicenses) MarkExpired(_ context.Context, id uuid.UUID) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for pid, l := range f.db.licenses {
		if l.ID == id && l.Status == model.LicenseActive {
			l.Status = model.LicenseExpired
			f.db.licenses[pid] = l
			f.db.expiryWrites++
			return true, nil
		}
	}
	return false, nil
}

type fakePreGenerated struct{ db *memDB }

func (f fakePreGenerated) GetByUsername(_ context.Context, username string) (model.PreGeneratedAccount, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, a := range f.db.pregen {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return model.PreGeneratedAccount{}, repo.ErrNotFound
}

func (f fakePreGenerated) Consume(_ context.Context, accountID uuid.UUID, nl model.NewLicense) (model.License, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.pregen[accountID]
	if !ok || a.IsUsed {
		return model.License{}, repo.ErrAlreadyConsumed
	}
	now := time.Now()
	a.IsUsed = true
	a.UsedBy = &nl.ProfileID
	a.UsedAt = &now
	f.db.pregen[accountID] = a
	return f.db.insertLicense(nl), nil
}

type fakeSessions struct{ db *memDB }

func (f fakeSessions) Replace(_ context.Context, s model.Session) (model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for id, existing := range f.db.sessions {
		if existing.ProfileID == s.ProfileID {
			delete(f.db.sessions, id)
		}
	}
	s.ID = uuid.New()
	s.IsValid = true
	s.CreatedAt = time.Now()
	f.db.sessions[s.ID] = s
	return s, nil
}

func (f fakeSessions) GetByID(_ context.Context, id uuid.UUID) (model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return model.Session{}, repo.ErrNotFound
	}
	return s, nil
}

func (f fakeSessions) GetByTokenHash(_ context.Context, hash string) (model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, s := range f.db.sessions {
		if s.TokenHash == hash {
			return s, nil
		}
	}
	return model.Session{}, repo.ErrNotFound
}

func (f fakeSessions) Touch(_ context.Context, id uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return repo.ErrNotFound
	}
	now := time.Now()
	s.LastSeenAt = &now
	f.db.sessions[id] = s
	return nil
}

func (f fakeSessions) DeleteByTokenHash(_ context.Context, hash string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for id, s := range f.db.sessions {
		if s.TokenHash == hash {
			delete(f.db.sessions, id)
			return nil
		}
	}
	return repo.ErrNotFound
}

type fakeMasters struct{ db *memDB }

func (f fakeMasters) GetActiveByUsername(_ context.Context, username string) (model.MasterCredential, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, m := range f.db.masters {
		if m.Active && strings.EqualFold(m.Username, username) {
			return m, nil
		}
	}
	return model.MasterCredential{}, repo.ErrNotFound
}

func (f fakeMasters) VerifyPassword(_ context.Context, id uuid.UUID, password string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.masterPass[id] == password, nil
}

// fakeIdentity is an IdentityProvider with plaintext passwords
type fakeIdentity struct{ db *memDB }

func (f fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (model.IdentityUser, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.identityCalls++
	f.db.signIns++
	if f.db.failIdentity != nil {
		return model.IdentityUser{}, f.db.failIdentity
	}
	if f.db.failSignIn != nil {
		if err := f.db.failSignIn(f.db.signIns); err != nil {
			return model.IdentityUser{}, err
		}
	}
	u, ok := f.db.identities[email]
	if !ok || f.db.idPass[u.ID] != password {
		return model.IdentityUser{}, ErrInvalidLogin
	}
	return u, nil
}

func (f fakeIdentity) CreateUser(_ context.Context, email, password string) (model.IdentityUser, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.identityCalls++
	if _, ok := f.db.identities[email]; ok {
		return model.IdentityUser{}, ErrUserExists
	}
	u := model.IdentityUser{ID: uuid.New(), Email: email, CreatedAt: time.Now()}
	f.db.identities[email] = u
	f.db.idPass[u.ID] = password
	return u, nil
}

func (f fakeIdentity) GetUserByEmail(_ context.Context, email string) (model.IdentityUser, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.identityCalls++
	u, ok := f.db.identities[email]
	if !ok {
		return model.IdentityUser{}, repo.ErrNotFound
	}
	return u, nil
}

func (f fakeIdentity) UpdatePassword(_ context.Context, id uuid.UUID, password string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.identityCalls++
	f.db.idPass[id] = password
	return nil
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "test-jwt-secret-at-least-32-characters-long"

type harness struct {
	db      *memDB
	clock   *clock
	service *AuthService
}

func newHarness(opts ...Option) *harness {
	db := newMemDB()
	clk := newClock()
	resolver := NewResolver(fakeMasters{db}, fakePreGenerated{db}, fakeProfiles{db}, fakeLicenses{db})
	bridge := NewIdentityBridge(fakeIdentity{db}, "academia.local", time.Second, nil)
	profiles := NewProfileStore(fakeProfiles{db})
	licenses := NewLicenseManager(fakeLicenses{db}, fakePreGenerated{db}, 7)
	sessions := NewSessionGuard(fakeSessions{db})
	jwtService := NewJWTService(testSecret, time.Hour)

	opts = append([]Option{WithClock(clk.Now)}, opts...)
	svc := NewAuthService(resolver, bridge, profiles, licenses, sessions, jwtService, opts...)
	return &harness{db: db, clock: clk, service: svc}
}

func (h *harness) login(username, password string, panel model.Panel) (*LoginResult, error) {
	return h.service.Login(context.Background(), Credentials{
		Username:   username,
		Password:   password,
		Panel:      panel,
		DeviceInfo: "test-device",
	})
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
