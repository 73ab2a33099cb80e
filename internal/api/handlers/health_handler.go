package handlers

import (
	"context"
	"net/http"
)

// Pinger は依存先の死活確認です。database.DatabaseService が実装します。
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler は /healthz を返します。データベースに届かなければ 503 です。
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
