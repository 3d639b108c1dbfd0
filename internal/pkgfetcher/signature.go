package pkgfetcher

import (
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
)

// VerifySignature checks an armored detached signature over archivePath
// against the armored public keyring at keyringPath.
func VerifySignature(keyringPath, archivePath, signaturePath string) error {
	keyFile, err := os.Open(keyringPath)
	if err != nil {
		return fmt.Errorf("open keyring %s: %w", keyringPath, err)
	}
	defer keyFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		return fmt.Errorf("read keyring %s: %w", keyringPath, err)
	}

	signed, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer signed.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature %s: %w", signaturePath, err)
	}
	defer sig.Close()

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, signed, sig, nil)
	if err != nil {
		return fmt.Errorf("signature check failed: %w", err)
	}
	logger.Logger().Debugf("signature on %s made by key %s", archivePath, signer.PrimaryKey.KeyIdString())
	return nil
}
