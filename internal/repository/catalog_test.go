package repository

import (
	"testing"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

func TestPreferStoreGames(t *testing.T) {
	storeID := "store-1"
	global := model.Game{ID: "game-global", Code: "0042", Name: "Lucky 7s"}
	local := model.Game{ID: "game-local", Code: "0042", Name: "Lucky 7s", StoreID: &storeID}
	other := model.Game{ID: "game-other", Code: "0100", Name: "Statewide"}

	tests := []struct {
		name  string
		games []model.Game
		want  map[string]string
	}{
		{
			name:  "global only",
			games: []model.Game{global},
			want:  map[string]string{"0042": "game-global"},
		},
		{
			name:  "store only",
			games: []model.Game{local},
			want:  map[string]string{"0042": "game-local"},
		},
		{
			name:  "store game shadows global",
			games: []model.Game{global, local},
			want:  map[string]string{"0042": "game-local"},
		},
		{
			name:  "shadowing does not depend on row order",
			games: []model.Game{local, global},
			want:  map[string]string{"0042": "game-local"},
		},
		{
			name:  "codes resolve independently",
			games: []model.Game{global, local, other},
			want:  map[string]string{"0042": "game-local", "0100": "game-other"},
		},
		{
			name:  "empty input",
			games: nil,
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preferStoreGames(tt.games)
			if len(got) != len(tt.want) {
				t.Fatalf("games = %d, want %d", len(got), len(tt.want))
			}
			for code, id := range tt.want {
				if got[code].ID != id {
					t.Fatalf("game for code %s = %s, want %s", code, got[code].ID, id)
				}
			}
		})
	}
}
