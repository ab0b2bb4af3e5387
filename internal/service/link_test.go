package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/sharebox/internal/domain/model"
	"github.com/bigkaa/sharebox/internal/repository"
	"github.com/bigkaa/sharebox/internal/storage/filestore"
)

// --- Stub-репозитории ---

type stubLinkRepo struct {
	byToken map[string]*model.Link
}

func (s *stubLinkRepo) Create(ctx context.Context, l *model.Link) error {
	if _, exists := s.byToken[l.Token]; exists {
		return repository.ErrTokenExists
	}
	s.byToken[l.Token] = l
	return nil
}

func (s *stubLinkRepo) GetByToken(ctx context.Context, token string) (*model.Link, error) {
	l, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return l, nil
}

func (s *stubLinkRepo) FindExpired(ctx context.Context, now time.Time) ([]*model.Link, error) {
	var expired []*model.Link
	for _, l := range s.byToken {
		if !l.ExpiresAt.After(now) {
			expired = append(expired, l)
		}
	}
	return expired, nil
}

func (s *stubLinkRepo) DeleteBatch(ctx context.Context, ids []string) error {
	for _, id := range ids {
		for token, l := range s.byToken {
			if l.ID == id {
				delete(s.byToken, token)
			}
		}
	}
	return nil
}

type stubFileRepo struct {
	byID       map[string]*model.File
	increments map[string]int
}

func (s *stubFileRepo) Create(ctx context.Context, f *model.File) error {
	s.byID[f.ID] = f
	return nil
}

func (s *stubFileRepo) GetByID(ctx context.Context, id string) (*model.File, error) {
	f, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f, nil
}

func (s *stubFileRepo) Update(ctx context.Context, id string, params repository.UpdateParams) (*model.File, error) {
	f, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f, nil
}

func (s *stubFileRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	s.increments[id]++
	return nil
}

func (s *stubFileRepo) DeleteBatch(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(s.byID, id)
	}
	return nil
}

// --- Тестовая обвязка ---

type linkFixture struct {
	svc   *LinkService
	links *stubLinkRepo
	files *stubFileRepo
	store *filestore.FileStore
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()

	store, err := filestore.New(t.TempDir(), "uploads")
	if err != nil {
		t.Fatalf("ошибка создания filestore: %v", err)
	}

	links := &stubLinkRepo{byToken: make(map[string]*model.Link)}
	files := &stubFileRepo{
		byID:       make(map[string]*model.File),
		increments: make(map[string]int),
	}

	return &linkFixture{
		svc:   NewLinkService(links, files, store, 16, time.Minute, testLogger()),
		links: links,
		files: files,
		store: store,
	}
}

// addLink создаёт файл на диске и записи file+link в стабах.
// password — сырой пароль, пустая строка — публичная ссылка.
func (fx *linkFixture) addLink(t *testing.T, content, password string, expiresAt time.Time) *model.Link {
	t.Helper()

	saved, err := fx.store.Save(strings.NewReader(content), "doc.pdf", ".pdf")
	if err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}

	file := &model.File{
		ID:         uuid.NewString(),
		FileName:   saved.StoredName,
		FilePath:   saved.RelPath,
		FileSize:   saved.Size,
		UploadDate: time.Now().UTC(),
		MimeType:   "application/pdf",
	}
	fx.files.byID[file.ID] = file

	link := &model.Link{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		FileID:    file.ID,
		ExpiresAt: expiresAt,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("ошибка хэширования пароля: %v", err)
		}
		h := string(hash)
		link.PasswordHash = &h
	}
	fx.links.byToken[link.Token] = link
	return link
}

func future() time.Time { return time.Now().UTC().Add(time.Hour) }

// --- Тесты ---

func TestView_PublicLink(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "pdf content", "", future())

	view, err := fx.svc.View(context.Background(), link.Token, VerifiedTokens{})
	if err != nil {
		t.Fatalf("View вернул ошибку: %v", err)
	}

	if view.Token != link.Token {
		t.Errorf("токен: ожидалось %q, получено %q", link.Token, view.Token)
	}
	if view.MimeType != "application/pdf" {
		t.Errorf("MIME-тип: получено %q", view.MimeType)
	}
	if view.FileSize != int64(len("pdf content")) {
		t.Errorf("размер: получено %d", view.FileSize)
	}
	if view.ArchiveEntries != nil {
		t.Error("не-архив не должен иметь списка содержимого")
	}
}

func TestView_PasswordRequired(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "secret", "pass123", future())

	_, err := fx.svc.View(context.Background(), link.Token, VerifiedTokens{})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("ожидалась ошибка ErrPasswordRequired, получено: %v", err)
	}
}

func TestView_PasswordVerified(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "secret", "pass123", future())

	verified := VerifiedTokens{}
	verified.Add(link.Token)

	view, err := fx.svc.View(context.Background(), link.Token, verified)
	if err != nil {
		t.Fatalf("View вернул ошибку для верифицированной сессии: %v", err)
	}
	if view.FileName == "" {
		t.Error("метаданные файла должны быть доступны после верификации")
	}
}

func TestResolve_Expired(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "old", "", time.Now().UTC().Add(-time.Minute))

	_, err := fx.svc.Resolve(context.Background(), link.Token)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("истёкшая ссылка должна резолвиться как NotFound, получено: %v", err)
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	fx := newLinkFixture(t)

	_, err := fx.svc.Resolve(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ошибка ErrNotFound, получено: %v", err)
	}
}

func TestResolve_CachesLink(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "cached", "", future())

	if _, err := fx.svc.Resolve(context.Background(), link.Token); err != nil {
		t.Fatalf("Resolve вернул ошибку: %v", err)
	}

	// Удаляем из репозитория — следующий Resolve должен отработать из кэша
	delete(fx.links.byToken, link.Token)

	if _, err := fx.svc.Resolve(context.Background(), link.Token); err != nil {
		t.Fatalf("Resolve должен вернуть ссылку из кэша: %v", err)
	}

	// После инвалидации — NotFound
	fx.svc.Invalidate(link.Token)
	if _, err := fx.svc.Resolve(context.Background(), link.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("после инвалидации ожидался NotFound, получено: %v", err)
	}
}

func TestCheckPassword_Correct(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "data", "correct-horse", future())

	if err := fx.svc.CheckPassword(context.Background(), link.Token, "correct-horse"); err != nil {
		t.Fatalf("верный пароль отвергнут: %v", err)
	}
}

func TestCheckPassword_Wrong(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "data", "correct-horse", future())

	err := fx.svc.CheckPassword(context.Background(), link.Token, "battery-staple")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("ожидалась ошибка ErrAccessDenied, получено: %v", err)
	}
}

func TestCheckPassword_PublicLink(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "data", "", future())

	if err := fx.svc.CheckPassword(context.Background(), link.Token, ""); err != nil {
		t.Fatalf("публичная ссылка не требует пароля: %v", err)
	}
}

func TestServe_IncrementsCounter(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "download me", "", future())

	result, err := fx.svc.Serve(context.Background(), link.Token, VerifiedTokens{}, true)
	if err != nil {
		t.Fatalf("Serve вернул ошибку: %v", err)
	}
	if result.AbsolutePath == "" {
		t.Error("путь файла не должен быть пустым")
	}
	if fx.files.increments[link.FileID] != 1 {
		t.Errorf("счётчик должен увеличиться на 1, получено %d", fx.files.increments[link.FileID])
	}

	// count=false — без инкремента
	if _, err := fx.svc.Serve(context.Background(), link.Token, VerifiedTokens{}, false); err != nil {
		t.Fatalf("Serve вернул ошибку: %v", err)
	}
	if fx.files.increments[link.FileID] != 1 {
		t.Errorf("счётчик не должен меняться при count=false, получено %d", fx.files.increments[link.FileID])
	}
}

func TestServe_PasswordGate(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "guarded", "pw", future())

	_, err := fx.svc.Serve(context.Background(), link.Token, VerifiedTokens{}, true)
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("скачивание без верификации должно отвергаться, получено: %v", err)
	}
	if fx.files.increments[link.FileID] != 0 {
		t.Error("счётчик не должен меняться при отказе в доступе")
	}
}

func TestView_FileMissingOnDisk(t *testing.T) {
	fx := newLinkFixture(t)
	link := fx.addLink(t, "ghost", "", future())

	// Файл удалён с диска, запись в БД осталась
	file := fx.files.byID[link.FileID]
	if err := fx.store.Delete(file.FilePath); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}

	_, err := fx.svc.View(context.Background(), link.Token, VerifiedTokens{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("расхождение БД и диска должно давать NotFound, получено: %v", err)
	}
}
