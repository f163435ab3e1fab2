package utils

import (
	"regexp"
	"time"
)

const DefaultPort = 21
const DefaultConnections = 4
const DefaultRotateInterval = 30 * time.Second
const DefaultConnectTimeout = 30 * time.Second
const DefaultStopTimeout = 2 * time.Second
const DefaultKeepAlive = 90 * time.Second
const DefaultChecksum = "SHA-256"
const LogFile = ".octoftp.log"
const PasswordEnv = "OCTOFTP_PASSWORD"

var ChunkIDRegex = regexp.MustCompile(`\.part(\d+)$`)
