// Package memory 提供 repository 接口的内存实现，用于单机部署和测试。
package memory

import (
	"sort"
	"sync"
	"time"

	"kb-admin-go/internal/model"
	"kb-admin-go/internal/repository"

	"gorm.io/gorm"
)

// Store 在一把读写锁下持有所有表，ID 全局自增，不会在部门之间冲突。
type Store struct {
	mu sync.RWMutex

	nextID      map[string]uint
	departments map[uint]model.Department
	users       map[uint]model.User
	categories  map[uint]model.Category
	files       map[uint]model.File
	activities  []model.Activity // 按追加顺序保存，查询时倒序
	settings    *model.SystemSettings
}

// NewStore 创建一个空的内存存储。
func NewStore() *Store {
	return &Store{
		nextID:      make(map[string]uint),
		departments: make(map[uint]model.Department),
		users:       make(map[uint]model.User),
		categories:  make(map[uint]model.Category),
		files:       make(map[uint]model.File),
	}
}

func (s *Store) allocID(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) Departments() repository.DepartmentRepository { return &departmentRepo{s: s} }
func (s *Store) Users() repository.UserRepository             { return &userRepo{s: s} }
func (s *Store) Categories() repository.CategoryRepository    { return &categoryRepo{s: s} }
func (s *Store) Files() repository.FileRepository             { return &fileRepo{s: s} }
func (s *Store) Activities() repository.ActivityRepository    { return &activityRepo{s: s} }
func (s *Store) Settings() repository.SettingsRepository      { return &settingsRepo{s: s} }

func sortedKeys[T any](m map[uint]T) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func copySettings(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type departmentRepo struct{ s *Store }

func (r *departmentRepo) Create(dept *model.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.departments {
		if d.Name == dept.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	dept.ID = r.s.allocID("departments")
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = time.Now()
	}
	stored := *dept
	stored.Settings = copySettings(dept.Settings)
	r.s.departments[dept.ID] = stored
	return nil
}

func (r *departmentRepo) FindByID(id uint) (*model.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.departments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	d.Settings = copySettings(d.Settings)
	return &d, nil
}

func (r *departmentRepo) FindByName(name string) (*model.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedKeys(r.s.departments) {
		d := r.s.departments[id]
		if d.Name == name {
			d.Settings = copySettings(d.Settings)
			return &d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *departmentRepo) FindAll() ([]model.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Department, 0, len(r.s.departments))
	for _, id := range sortedKeys(r.s.departments) {
		d := r.s.departments[id]
		d.Settings = copySettings(d.Settings)
		out = append(out, d)
	}
	return out, nil
}

func (r *departmentRepo) Update(dept *model.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.departments[dept.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *dept
	stored.Settings = copySettings(dept.Settings)
	r.s.departments[dept.ID] = stored
	return nil
}

func (r *departmentRepo) Delete(id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.departments, id)
	return nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = r.s.allocID("users")
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepo) FindByID(userID uint) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *userRepo) find(match func(model.User) bool) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedKeys(r.s.users) {
		u := r.s.users[id]
		if match(u) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *userRepo) FindByUsername(username string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Username == username })
}

func (r *userRepo) FindByEmail(email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email })
}

func (r *userRepo) filter(match func(model.User) bool) []model.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.User, 0)
	for _, id := range sortedKeys(r.s.users) {
		if u := r.s.users[id]; match(u) {
			out = append(out, u)
		}
	}
	return out
}

func (r *userRepo) FindAll() ([]model.User, error) {
	return r.filter(func(model.User) bool { return true }), nil
}

func (r *userRepo) FindByDepartment(deptID uint) ([]model.User, error) {
	return r.filter(func(u model.User) bool { return u.DepartmentID != nil && *u.DepartmentID == deptID }), nil
}

func (r *userRepo) Count() (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.users)), nil
}

func (r *userRepo) CountByDepartment(deptID uint) (int64, error) {
	users, _ := r.FindByDepartment(deptID)
	return int64(len(users)), nil
}

func (r *userRepo) Update(user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for id, u := range r.s.users {
		if id != user.ID && (u.Username == user.Username || u.Email == user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	user.UpdatedAt = time.Now()
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepo) Delete(userID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.users, userID)
	return nil
}

type categoryRepo struct{ s *Store }

func (r *categoryRepo) Create(category *model.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.categories {
		if c.DepartmentID == category.DepartmentID && c.Name == category.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	category.ID = r.s.allocID("categories")
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now()
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r *categoryRepo) FindByID(deptID, id uint) (*model.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.categories[id]
	if !ok || c.DepartmentID != deptID {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *categoryRepo) FindByName(deptID uint, name string) (*model.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedKeys(r.s.categories) {
		c := r.s.categories[id]
		if c.DepartmentID == deptID && c.Name == name {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *categoryRepo) FindByDepartment(deptID uint) ([]model.Category, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Category, 0)
	for _, id := range sortedKeys(r.s.categories) {
		if c := r.s.categories[id]; c.DepartmentID == deptID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *categoryRepo) Delete(deptID, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.categories[id]; ok && c.DepartmentID == deptID {
		delete(r.s.categories, id)
	}
	return nil
}

func (r *categoryRepo) DeleteByDepartment(deptID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.categories {
		if c.DepartmentID == deptID {
			delete(r.s.categories, id)
		}
	}
	return nil
}

type fileRepo struct{ s *Store }

func (r *fileRepo) Create(file *model.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	file.ID = r.s.allocID("files")
	r.s.files[file.ID] = *file
	return nil
}

func (r *fileRepo) FindByID(deptID, id uint) (*model.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.files[id]
	if !ok || f.DepartmentID != deptID {
		return nil, gorm.ErrRecordNotFound
	}
	return &f, nil
}

func (r *fileRepo) FindByDepartment(deptID uint) ([]model.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.File, 0)
	for _, id := range sortedKeys(r.s.files) {
		if f := r.s.files[id]; f.DepartmentID == deptID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fileRepo) Delete(deptID, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.DepartmentID != deptID {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.files, id)
	return nil
}

func (r *fileRepo) UpdateCategory(deptID, id uint, category string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.files[id]
	if !ok || f.DepartmentID != deptID {
		return gorm.ErrRecordNotFound
	}
	f.Category = category
	r.s.files[id] = f
	return nil
}

func (r *fileRepo) ReassignCategory(deptID uint, from, to string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, f := range r.s.files {
		if f.DepartmentID == deptID && f.Category == from {
			f.Category = to
			r.s.files[id] = f
			n++
		}
	}
	return n, nil
}

func (r *fileRepo) Count() (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.s.files)), nil
}

func (r *fileRepo) CountByDepartment(deptID uint) (int64, error) {
	files, _ := r.FindByDepartment(deptID)
	return int64(len(files)), nil
}

func (r *fileRepo) DeleteByDepartment(deptID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, f := range r.s.files {
		if f.DepartmentID == deptID {
			delete(r.s.files, id)
		}
	}
	return nil
}

type activityRepo struct{ s *Store }

func (r *activityRepo) Append(activity *model.Activity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	activity.ID = r.s.allocID("activities")
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}
	r.s.activities = append(r.s.activities, *activity)
	return nil
}

func (r *activityRepo) collect(match func(model.Activity) bool, limit int) []model.Activity {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Activity, 0)
	for i := len(r.s.activities) - 1; i >= 0; i-- {
		a := r.s.activities[i]
		if !match(a) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (r *activityRepo) FindTenant(deptID uint, limit int) ([]model.Activity, error) {
	return r.collect(func(a model.Activity) bool {
		return a.Scope == model.ScopeTenant && a.DepartmentID != nil && *a.DepartmentID == deptID
	}, limit), nil
}

func (r *activityRepo) FindSystem(deptID *uint, limit int) ([]model.Activity, error) {
	return r.collect(func(a model.Activity) bool {
		if a.Scope != model.ScopeSystem {
			return false
		}
		return deptID == nil || (a.DepartmentID != nil && *a.DepartmentID == *deptID)
	}, limit), nil
}

func (r *activityRepo) DeleteTenantByDepartment(deptID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.activities[:0]
	for _, a := range r.s.activities {
		if a.Scope == model.ScopeTenant && a.DepartmentID != nil && *a.DepartmentID == deptID {
			continue
		}
		kept = append(kept, a)
	}
	r.s.activities = kept
	return nil
}

type settingsRepo struct{ s *Store }

func (r *settingsRepo) Get() (*model.SystemSettings, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.settings == nil {
		return &model.SystemSettings{ID: 1, Data: map[string]interface{}{}}, nil
	}
	out := *r.s.settings
	out.Data = copySettings(r.s.settings.Data)
	return &out, nil
}

func (r *settingsRepo) Save(settings *model.SystemSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *settings
	stored.ID = 1
	stored.UpdatedAt = time.Now()
	stored.Data = copySettings(settings.Data)
	r.s.settings = &stored
	return nil
}
