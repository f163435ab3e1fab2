package utils

import (
	"net"
	"strconv"
	"time"
)

type ServerTarget struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Insecure bool // skip certificate verification (self-signed FTPS servers)
	Timeout  time.Duration
}

func (t ServerTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

type FileEntry struct {
	Name     string
	Path     string
	Size     int64
	IsDir    bool
	Modified string
}

type DownloadResult struct {
	Success bool
	Message string
}

// ProgressFunc receives per-chunk progress: the chunk index, bytes written for
// that chunk so far and the speed (bytes/s) of the current connection.
type ProgressFunc func(threadID int, downloaded int64, speed float64)

type CompleteFunc func(success bool, message string)

type DownloadJob struct {
	ID             string
	RemotePath     string
	OutputPath     string
	Connections    int
	RotateInterval time.Duration
	MaxSpeed       float64
	Checksum       string
	ExpectedDigest string
}

type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Remote     string `yaml:"remote"`
	Checksum   string `yaml:"checksum,omitempty"`
	Digest     string `yaml:"digest,omitempty"`
}
