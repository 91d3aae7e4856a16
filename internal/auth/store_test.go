package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFileTokenStore_SaveLoad(t *testing.T) {
	// Token directory does not exist yet; SaveToken creates it
	tokenPath := filepath.Join(t.TempDir(), "tokens", "google.json")
	store := NewFileTokenStore(tokenPath)

	expiry := time.Now().Add(1 * time.Hour)
	token := &oauth2.Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		Expiry:       expiry,
		TokenType:    "Bearer",
	}

	if err := store.SaveToken(token); err != nil {
		t.Fatalf("SaveToken() returned an error: %v", err)
	}

	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("Failed to stat token file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected token file mode 0600, got %v", info.Mode().Perm())
	}

	loadedToken, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() returned an error: %v", err)
	}
	if loadedToken == nil {
		t.Fatal("LoadToken() returned nil token")
	}
	if loadedToken.AccessToken != token.AccessToken {
		t.Errorf("Expected AccessToken to be '%s', got '%s'", token.AccessToken, loadedToken.AccessToken)
	}
	if loadedToken.RefreshToken != token.RefreshToken {
		t.Errorf("Expected RefreshToken to be '%s', got '%s'", token.RefreshToken, loadedToken.RefreshToken)
	}
	if !loadedToken.Expiry.Equal(token.Expiry) {
		t.Errorf("Expected Expiry to be %v, got %v", token.Expiry, loadedToken.Expiry)
	}

	entries, _ := os.ReadDir(filepath.Dir(tokenPath))
	if len(entries) != 1 {
		t.Errorf("Expected only the token file in its directory, got %d entries", len(entries))
	}
}

func TestFileTokenStore_LoadEmpty(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nonexistent.json"))

	token, err := store.LoadToken()
	if err != nil {
		t.Fatalf("LoadToken() should not return an error for non-existent file, got: %v", err)
	}
	if token != nil {
		t.Errorf("LoadToken() should return nil for non-existent file, got: %v", token)
	}
}

func TestFileTokenStore_LoadBlankToken(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(tokenPath, []byte(`{}`), 0600); err != nil {
		t.Fatalf("Failed to write token file: %v", err)
	}

	if _, err := NewFileTokenStore(tokenPath).LoadToken(); err == nil {
		t.Error("Expected error for a token file without tokens")
	}
}

func TestFileTokenStore_Delete(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))

	if err := store.DeleteToken(); err != nil {
		t.Fatalf("DeleteToken() on a missing file returned an error: %v", err)
	}

	if err := store.SaveToken(&oauth2.Token{RefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken() returned an error: %v", err)
	}
	if err := store.DeleteToken(); err != nil {
		t.Fatalf("DeleteToken() returned an error: %v", err)
	}

	token, err := store.LoadToken()
	if err != nil || token != nil {
		t.Errorf("Expected no token after delete, got %v, %v", token, err)
	}
}

func TestFileTokenStore_SaveNil(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.SaveToken(nil); err == nil {
		t.Error("Expected error saving nil token")
	}
}
