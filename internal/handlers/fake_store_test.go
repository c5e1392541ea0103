package handlers

import (
	"context"
	"sort"
	"sync"

	"github.com/rickgao/opengroup/internal/database"
	"github.com/rickgao/opengroup/internal/model"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu         sync.Mutex
	messages   []model.Message
	nextID     int64
	deleted    []model.DeletedMessage
	moderators map[string]bool
	banned     map[string]bool
	files      map[string]model.File
	pending    map[[2]string]int64 // (public key, token hash) -> expires at
	tokens     map[string]string   // token hash -> public key
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		moderators: make(map[string]bool),
		banned:     make(map[string]bool),
		files:      make(map[string]model.File),
		pending:    make(map[[2]string]int64),
		tokens:     make(map[string]string),
	}
}

func (f *fakeStore) InsertMessage(_ context.Context, msg model.Message) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	msg.ServerID = &id
	f.messages = append(f.messages, msg)
	return id, nil
}

func (f *fakeStore) Messages(_ context.Context, limit int, from *int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	if from != nil {
		for _, m := range f.messages {
			if *m.ServerID > *from && len(out) < limit {
				out = append(out, m)
			}
		}
		return out, nil
	}
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.messages[i])
	}
	return out, nil
}

func (f *fakeStore) DeletedMessages(_ context.Context, limit int, from *int64) ([]model.DeletedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeletedMessage
	if from != nil {
		for _, d := range f.deleted {
			if d.ID > *from && len(out) < limit {
				out = append(out, d)
			}
		}
		return out, nil
	}
	for i := len(f.deleted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.deleted[i])
	}
	return out, nil
}

func (f *fakeStore) MessageAuthor(_ context.Context, serverID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if *m.ServerID == serverID {
			return m.PublicKey, nil
		}
	}
	return "", database.ErrNotFound
}

func (f *fakeStore) DeleteMessage(_ context.Context, serverID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.messages {
		if *m.ServerID == serverID {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			id := int64(len(f.deleted) + 1)
			f.deleted = append(f.deleted, model.DeletedMessage{ID: id, DeletedMessageID: serverID})
			return id, nil
		}
	}
	return 0, database.ErrNotFound
}

func (f *fakeStore) Moderators(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.moderators), nil
}

func (f *fakeStore) IsModerator(_ context.Context, publicKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moderators[publicKey], nil
}

func (f *fakeStore) BannedPublicKeys(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.banned), nil
}

func (f *fakeStore) IsBanned(_ context.Context, publicKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banned[publicKey], nil
}

func (f *fakeStore) Ban(_ context.Context, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banned[publicKey] = true
	for hash, owner := range f.tokens {
		if owner == publicKey {
			delete(f.tokens, hash)
		}
	}
	return nil
}

func (f *fakeStore) Unban(_ context.Context, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.banned, publicKey)
	return nil
}

func (f *fakeStore) MemberCount(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make(map[string]bool)
	for _, owner := range f.tokens {
		members[owner] = true
	}
	return int64(len(members)), nil
}

func (f *fakeStore) StoreFile(_ context.Context, file model.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.ID] = file
	return nil
}

func (f *fakeStore) File(_ context.Context, id string) (model.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return model.File{}, database.ErrNotFound
	}
	return file, nil
}

func (f *fakeStore) PutChallenge(_ context.Context, c model.AuthChallenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[[2]string{c.PublicKey, c.TokenHash}] = c.ExpiresAt
	return nil
}

func (f *fakeStore) ClaimToken(_ context.Context, publicKey, tokenHash string, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]string{publicKey, tokenHash}
	expires, ok := f.pending[key]
	if !ok || expires <= now {
		return false, nil
	}
	delete(f.pending, key)
	f.tokens[tokenHash] = publicKey
	return true, nil
}

func (f *fakeStore) TokenOwner(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.tokens[tokenHash]
	if !ok {
		return "", database.ErrNotFound
	}
	return owner, nil
}

func (f *fakeStore) DeleteToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, tokenHash)
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
