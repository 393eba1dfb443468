package auth

import (
	"backstage/internal/config"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/vault/api"
)

type Secrets struct {
	PrivateKey  *rsa.PrivateKey
	PublicKey   *rsa.PublicKey
	DatabaseURL string
}

// LoadSecrets liest JWT-Schlüssel und DSN aus Vault, falls VAULT_ADDR gesetzt ist,
// sonst aus den PEM-Dateien und DATABASE_URL.
func LoadSecrets(cfg *config.Config) (*Secrets, error) {
	if cfg.UseVault() {
		return LoadSecretsFromVault(cfg)
	}
	return LoadSecretsFromFiles(cfg)
}

func LoadSecretsFromFiles(cfg *config.Config) (*Secrets, error) {
	privatePEM, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen der privaten Schlüsseldatei %s: %w", cfg.JWTPrivateKeyPath, err)
	}
	publicPEM, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen der öffentlichen Schlüsseldatei %s: %w", cfg.JWTPublicKeyPath, err)
	}

	secrets, err := parseKeyPair(string(privatePEM), string(publicPEM))
	if err != nil {
		return nil, err
	}
	secrets.DatabaseURL = cfg.DatabaseURL
	slog.Info("JWT-Schlüssel aus Dateien geladen", slog.String("public_key_path", cfg.JWTPublicKeyPath))
	return secrets, nil
}

// createVaultClient führt den AppRole-Login aus.
func createVaultClient(cfg *config.Config) (*api.Client, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.VaultAddr
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Erstellen des Vault-Clients: %w", err)
	}

	slog.Info("Führe Vault AppRole-Login aus...")
	appRoleData := map[string]any{
		"role_id":   cfg.VaultAppRoleRoleID,
		"secret_id": cfg.VaultAppRoleSecretID,
	}

	resp, err := client.Logical().Write("auth/approle/login", appRoleData)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Vault AppRole-Login: %w", err)
	}
	if resp == nil || resp.Auth == nil {
		return nil, fmt.Errorf("vault AppRole-Login gab keine Authentifizierungsdaten zurück")
	}

	client.SetToken(resp.Auth.ClientToken)
	slog.Info("Vault AppRole-Login erfolgreich. Kurzlebiger Token gesetzt.")
	return client, nil
}

// readKV2SecretData liest aus der KV v2 Engine; die Nutzdaten stecken dort unter "data".
func readKV2SecretData(client *api.Client, path string) (map[string]any, error) {
	secret, err := client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen des Secrets von Vault %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("keine daten gefunden unter Vault-Pfad: %s", path)
	}

	secretData, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return secret.Data, nil
	}
	return secretData, nil
}

func LoadSecretsFromVault(cfg *config.Config) (*Secrets, error) {
	slog.Debug("Erstelle Vault-Client für Backstage-Secrets...", slog.String("address", cfg.VaultAddr))
	client, err := createVaultClient(cfg)
	if err != nil {
		return nil, err
	}

	// 1. JWT-Schlüssel (KV v2)
	jwtSecretData, err := readKV2SecretData(client, cfg.VaultJWTSecretPath)
	if err != nil {
		slog.Error("Fehler beim Lesen der JWT-Daten", slog.Any("error", err))
		return nil, err
	}
	privateKeyPEM, _ := jwtSecretData["private_key"].(string)
	publicKeyPEM, _ := jwtSecretData["public_key"].(string)

	secrets, err := parseKeyPair(privateKeyPEM, publicKeyPEM)
	if err != nil {
		return nil, err
	}
	slog.Info("JWT-Schlüssel erfolgreich aus Vault geladen.")

	// 2. Dynamische DB-Credentials (Database Engine)
	dbSecret, err := client.Logical().Read(cfg.VaultDBCredsPath)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen der DB-Credentials: %w", err)
	}
	if dbSecret == nil || dbSecret.Data == nil {
		return nil, fmt.Errorf("keine Credentials von Vault unter %s erhalten", cfg.VaultDBCredsPath)
	}

	username, ok1 := dbSecret.Data["username"].(string)
	password, ok2 := dbSecret.Data["password"].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("vault antwort enthielt keine username/password felder")
	}

	secrets.DatabaseURL = BuildMySQLDSN(username, password, envOr("DB_HOST", "db"), envOr("DB_PORT", "3306"), envOr("DB_NAME", "backstage"))
	slog.Info("Dynamische DB-Credentials geladen und DSN generiert", slog.String("db_user", username))

	return secrets, nil
}

// BuildMySQLDSN baut user:pass@tcp(host:port)/dbname?parseTime=true.
func BuildMySQLDSN(username, password, host, port, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", username, password, host, port, dbName)
}

func parseKeyPair(privateKeyPEM, publicKeyPEM string) (*Secrets, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, fmt.Errorf("private_key oder public_key fehlen")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("fehler beim Parsen des privaten Schlüssels: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("fehler beim Parsen des öffentlichen Schlüssels: %w", err)
	}
	return &Secrets{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
