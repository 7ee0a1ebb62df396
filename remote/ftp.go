package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/spf13/afero"

	"emusync/models"
)

// FTPConn is the subset of an FTP session the transfers need.
type FTPConn interface {
	Login(user, password string) error
	Quit() error
	List(path string) ([]*ftp.Entry, error)
	MakeDir(path string) error
	RemoveDirRecur(path string) error
	Rename(from, to string) error
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
}

// FTPDialer opens an unauthenticated FTP session.
type FTPDialer func(ctx context.Context, addr string) (FTPConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(p string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(p)
}

// DialFTP returns a dialer backed by jlaffaye/ftp.
func DialFTP(timeout time.Duration) FTPDialer {
	return func(ctx context.Context, addr string) (FTPConn, error) {
		conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(timeout))
		if err != nil {
			return nil, fmt.Errorf("dial ftp %s: %w", addr, err)
		}
		return serverConn{conn}, nil
	}
}

func ftpAddr(device models.Device) string {
	return net.JoinHostPort(device.IP, strconv.Itoa(device.Port))
}

// openFTP dials and logs into device.
func openFTP(ctx context.Context, dial FTPDialer, device models.Device) (FTPConn, error) {
	conn, err := dial(ctx, ftpAddr(device))
	if err != nil {
		return nil, err
	}
	if err := conn.Login(device.User, device.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login %s: %w", device.Name, err)
	}
	return conn, nil
}

// removeDirIfExists deletes a remote tree only when it is listed in its parent.
func removeDirIfExists(conn FTPConn, p string) error {
	entries, err := conn.List(path.Dir(p))
	if err != nil {
		return fmt.Errorf("list %s: %w", path.Dir(p), err)
	}
	name := path.Base(p)
	for _, entry := range entries {
		if entry.Name == name {
			if err := conn.RemoveDirRecur(p); err != nil {
				return fmt.Errorf("remove %s: %w", p, err)
			}
			return nil
		}
	}
	return nil
}

// uploadDir copies the contents of localDir into the existing remoteDir.
func uploadDir(fs afero.Fs, conn FTPConn, localDir, remoteDir string) error {
	infos, err := afero.ReadDir(fs, localDir)
	if err != nil {
		return fmt.Errorf("read %s: %w", localDir, err)
	}
	for _, info := range infos {
		local := path.Join(localDir, info.Name())
		remote := path.Join(remoteDir, info.Name())
		if info.IsDir() {
			if err := conn.MakeDir(remote); err != nil {
				return fmt.Errorf("mkdir %s: %w", remote, err)
			}
			if err := uploadDir(fs, conn, local, remote); err != nil {
				return err
			}
			continue
		}
		if err := uploadFile(fs, conn, local, remote); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(fs afero.Fs, conn FTPConn, local, remote string) error {
	f, err := fs.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close()
	if err := conn.Stor(remote, f); err != nil {
		return fmt.Errorf("stor %s: %w", remote, err)
	}
	return nil
}

// downloadDir copies the contents of remoteDir into localDir.
func downloadDir(fs afero.Fs, conn FTPConn, remoteDir, localDir string) error {
	if err := fs.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", localDir, err)
	}
	entries, err := conn.List(remoteDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", remoteDir, err)
	}
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		remote := path.Join(remoteDir, entry.Name)
		local := path.Join(localDir, entry.Name)
		switch entry.Type {
		case ftp.EntryTypeFolder:
			if err := downloadDir(fs, conn, remote, local); err != nil {
				return err
			}
		case ftp.EntryTypeFile:
			if err := downloadFile(fs, conn, remote, local); err != nil {
				return err
			}
		}
	}
	return nil
}

func downloadFile(fs afero.Fs, conn FTPConn, remote, local string) error {
	body, err := conn.Retr(remote)
	if err != nil {
		return fmt.Errorf("retr %s: %w", remote, err)
	}
	defer body.Close()

	f, err := fs.Create(local)
	if err != nil {
		return fmt.Errorf("create %s: %w", local, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("copy %s: %w", remote, err)
	}
	return nil
}
