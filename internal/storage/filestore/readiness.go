package filestore

// ReadinessChecker — проверка готовности каталога загрузок для health endpoint.
type ReadinessChecker struct {
	store *Store
}

// NewReadinessChecker создаёт проверку готовности каталога загрузок.
func NewReadinessChecker(store *Store) *ReadinessChecker {
	return &ReadinessChecker{store: store}
}

// CheckReady проверяет, что в каталог загрузок можно писать.
func (c *ReadinessChecker) CheckReady() (status, message string) {
	if err := c.store.CheckWritable(); err != nil {
		return "fail", err.Error()
	}
	return "ok", "каталог доступен для записи"
}
