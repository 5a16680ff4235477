package model

import (
	"testing"
	"time"
)

func TestStatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deleted := now.Add(-time.Minute)

	tests := []struct {
		name string
		rec  FileRecord
		want Status
	}{
		{"активный", FileRecord{ExpiresAt: now.Add(time.Second)}, StatusActive},
		{"граница expiresAt == now", FileRecord{ExpiresAt: now}, StatusExpired},
		{"истёкший", FileRecord{ExpiresAt: now.Add(-time.Hour)}, StatusExpired},
		{"удалённый активный", FileRecord{ExpiresAt: now.Add(time.Hour), DeletedAt: &deleted}, StatusDeleted},
		{"удалённый приоритетнее истёкшего", FileRecord{ExpiresAt: now.Add(-time.Hour), DeletedAt: &deleted}, StatusDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.StatusAt(now); got != tt.want {
				t.Errorf("StatusAt() = %q, ожидался %q", got, tt.want)
			}
		})
	}
}

func TestIsProtected(t *testing.T) {
	empty := ""
	hash := "$2a$10$abc"
	if (&FileRecord{}).IsProtected() {
		t.Error("запись без хэша не должна быть защищённой")
	}
	if (&FileRecord{PasswordHash: &empty}).IsProtected() {
		t.Error("пустой хэш не должен считаться защитой")
	}
	if !(&FileRecord{PasswordHash: &hash}).IsProtected() {
		t.Error("запись с хэшем должна быть защищённой")
	}
}

func TestParseStatusFilter(t *testing.T) {
	for in, want := range map[string]StatusFilter{
		"": FilterAll, "all": FilterAll, "active": FilterActive, "expired": FilterExpired, "deleted": FilterDeleted,
	} {
		got, ok := ParseStatusFilter(in)
		if !ok || got != want {
			t.Errorf("ParseStatusFilter(%q) = %q, %v; ожидался %q", in, got, ok, want)
		}
	}
	if _, ok := ParseStatusFilter("ACTIVE"); ok {
		t.Error("ParseStatusFilter(\"ACTIVE\") должен вернуть false")
	}
}
