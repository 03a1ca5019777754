package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleClient:
		return clientTemplate + classesTemplate, nil
	case RoleAuthority, "ai", "server":
		return authorityTemplate + classesTemplate, nil
	default:
		return "", fmt.Errorf("unknown config role: %s", role)
	}
}

func WriteTemplate(path, role string, overwrite bool) error {
	template, err := Template(role)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `name = "client-1"
role = "client"
address = "127.0.0.1:6667"
heartbeat = "10s"
wire_charset = "latin1"

[hello]
version = "dev"
hash = 0

[[interest]]
handle = 1
context = 1
parent = 4000
zones = [100, 101]

[session]
connect_timeout = "5s"
max_connect_attempts = 3
security_mode = "development"

[admin]
addr = "127.0.0.1:9180"
cors_origins = ["http://localhost:3000"]

`

const authorityTemplate = `name = "ai-1"
role = "authority"
address = "127.0.0.1:7199"
request_timeout = "30s"
wire_charset = "raw"

[authority]
channel = 4000
state_server = 10000
database = 4003
con_name = "ai-1"
object_min = 100000000
object_max = 100009999

[channels]
min = 1000000
max = 1009999

[session]
connect_timeout = "5s"
write_timeout = "15s"
security_mode = "development"

[admin]
addr = "127.0.0.1:9190"

[tracing]
endpoint = ""
service = "dorepo-ai"

`

const classesTemplate = `[[class]]
name = "DistributedZone"
number = 1

[[class]]
name = "DistributedAvatar"
number = 2

[[class.fields]]
name = "setName"
tag = 10
kind = "parameter"
keywords = ["required", "broadcast", "db"]
params = ["string"]
default = [""]

[[class.fields]]
name = "setXY"
tag = 11
kind = "atomic"
keywords = ["required", "broadcast", "ram"]
params = ["int32", "int32"]
default = ["0", "0"]

[[class.fields]]
name = "setHp"
tag = 12
kind = "parameter"
keywords = ["required", "broadcast", "ownrecv"]
params = ["uint16"]
default = ["100"]

[[class.fields]]
name = "say"
tag = 13
kind = "atomic"
keywords = ["broadcast", "clsend"]
params = ["string"]

[[class.fields]]
name = "setNameXY"
tag = 14
kind = "molecular"
keywords = ["broadcast"]
components = ["setName", "setXY"]
`
