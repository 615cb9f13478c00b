package dataset

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FetchOptions configures remote dataset retrieval.
type FetchOptions struct {
	UserAgent string
	Timeout   time.Duration

	// Limiter throttles repeated fetches against the same host.
	Limiter *rate.Limiter
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.UserAgent == "" {
		o.UserAgent = "rover/1.0"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Load reads a dataset from a local path or an http(s)/ftp URL.
func Load(ctx context.Context, source string, fetch FetchOptions, read ReadOptions) (*Frame, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return Read(source, read)
	}

	switch u.Scheme {
	case "http", "https", "ftp":
		local, fetchErr := Fetch(ctx, source, fetch)
		if fetchErr != nil {
			return nil, fetchErr
		}
		defer os.Remove(local) //nolint:errcheck
		return Read(local, read)
	default:
		return Read(source, read)
	}
}

// Fetch downloads a remote dataset to a temp file and returns its path.
// The caller owns the file.
func Fetch(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	opts = opts.withDefaults()

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "dataset: parse url")
	}

	if opts.Limiter != nil {
		if err := opts.Limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "dataset: rate limit wait")
		}
	}

	log := zap.L().With(zap.String("url", rawURL))
	start := time.Now()

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = fetchHTTP(ctx, rawURL, opts)
	case "ftp":
		body, err = fetchFTP(ctx, u, opts)
	default:
		return "", eris.Errorf("dataset: unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "rover-dataset-*"+filepath.Ext(u.Path))
	if err != nil {
		return "", eris.Wrap(err, "dataset: create temp file")
	}

	n, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "dataset: download")
	}
	if closeErr != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(closeErr, "dataset: close temp file")
	}

	log.Info("fetched dataset",
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return tmp.Name(), nil
}

func fetchHTTP(ctx context.Context, rawURL string, opts FetchOptions) (io.ReadCloser, error) {
	client := &http.Client{Timeout: opts.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create request")
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: http get")
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close() //nolint:errcheck
		return nil, eris.Errorf("dataset: %s returned %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// ftpReader ties the FTP data connection's lifetime to the reader so that
// closing it also disconnects from the server.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpReader) Close() error {
	if err := r.resp.Close(); err != nil {
		r.conn.Quit() //nolint:errcheck
		return err
	}
	return r.conn.Quit()
}

func fetchFTP(ctx context.Context, u *url.URL, opts FetchOptions) (io.ReadCloser, error) {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(opts.Timeout))
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: ftp dial %s", host)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "dataset: ftp login")
	}

	resp, err := conn.Retr(path.Clean(u.Path))
	if err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrapf(err, "dataset: ftp retrieve %s", u.Path)
	}

	return &ftpReader{resp: resp, conn: conn}, nil
}
