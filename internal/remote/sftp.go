package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/config"
)

const sftpDialTimeout = 30 * time.Second

// SFTPTarget mirrors bundles over SSH with strict host key checking and
// per-file checksum verification after upload.
type SFTPTarget struct {
	Addr       string
	User       string
	KeyPath    string
	KnownHosts string
	BaseDir    string
}

func NewSFTPTarget(settings config.RemoteSettings) (backup.Target, error) {
	if settings.Addr == "" || settings.User == "" || settings.KeyPath == "" {
		return nil, fmt.Errorf("sftp target needs addr, user and key_path")
	}
	return &SFTPTarget{
		Addr:       settings.Addr,
		User:       settings.User,
		KeyPath:    settings.KeyPath,
		KnownHosts: settings.KnownHosts,
		BaseDir:    settings.BaseDir,
	}, nil
}

func (t *SFTPTarget) Name() string { return "sftp" }

func (t *SFTPTarget) Push(ctx context.Context, bundleDir string) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	sf, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()

	files, err := bundleFiles(bundleDir)
	if err != nil {
		return err
	}
	remoteDir := path.Join(t.BaseDir, filepath.Base(bundleDir))
	if err := sf.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("mkdir remote: %w", err)
	}
	for _, name := range files {
		local := filepath.Join(bundleDir, name)
		remote := path.Join(remoteDir, name)
		if err := t.pushFile(client, sf, local, remote); err != nil {
			return fmt.Errorf("push %s: %w", name, err)
		}
	}
	log.Info().Str("target", t.Addr).Int("files", len(files)).Msg("bundle pushed via sftp")
	return nil
}

func (t *SFTPTarget) pushFile(client *xssh.Client, sf *sftp.Client, localPath, remotePath string) error {
	sum, err := fileChecksum(localPath)
	if err != nil {
		return fmt.Errorf("local checksum: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local: %w", err)
	}
	defer src.Close()
	dst, err := sf.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close remote: %w", err)
	}

	if err := verifyRemoteChecksum(client, remotePath, sum); err != nil {
		_ = sf.Remove(remotePath)
		return err
	}
	return nil
}

func (t *SFTPTarget) dial(ctx context.Context) (*xssh.Client, error) {
	key, err := os.ReadFile(t.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	hostKeys, err := knownhosts.New(t.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	cfg := &xssh.ClientConfig{
		User:            t.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         sftpDialTimeout,
	}

	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		cli, err := xssh.Dial("tcp", t.Addr, cfg)
		ch <- res{cli: cli, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("dial %s: %w", t.Addr, r.err)
		}
		return r.cli, nil
	}
}

// verifyRemoteChecksum recomputes the uploaded file's hash on the remote
// side and compares it against the local one.
func verifyRemoteChecksum(client *xssh.Client, remotePath, want string) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(fmt.Sprintf("sha256sum %s | cut -d' ' -f1", remotePath))
	if err != nil {
		return fmt.Errorf("remote checksum: %w", err)
	}
	got := string(out)
	if n := len(got); n > 0 && got[n-1] == '\n' {
		got = got[:n-1]
	}
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: want %s, got %s", remotePath, want, got)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
