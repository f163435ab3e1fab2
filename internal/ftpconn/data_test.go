package ftpconn

import "testing"

func TestParsePASV(t *testing.T) {
	tests := []struct {
		msg     string
		port    int
		wantErr bool
	}{
		{msg: "Entering Passive Mode (192,168,1,10,195,80)", port: 195*256 + 80},
		{msg: "Entering Passive Mode (10,0,0,1,0,21).", port: 21},
		{msg: "Entering Passive Mode 10,0,0,1,0,21", wantErr: true},
		{msg: "Entering Passive Mode (10,0,0,1,21)", wantErr: true},
		{msg: "Entering Passive Mode (10,0,0,1,300,1)", wantErr: true},
	}
	for _, tt := range tests {
		port, err := parsePASV(tt.msg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePASV(%q) expected error", tt.msg)
			}
			continue
		}
		if err != nil || port != tt.port {
			t.Errorf("parsePASV(%q) = %d, %v; want %d", tt.msg, port, err, tt.port)
		}
	}
}

func TestParseEPSV(t *testing.T) {
	tests := []struct {
		msg     string
		port    int
		wantErr bool
	}{
		{msg: "Entering Extended Passive Mode (|||6446|)", port: 6446},
		{msg: "Entering Extended Passive Mode (!!!2121!)", port: 2121},
		{msg: "Entering Extended Passive Mode (|||0|)", wantErr: true},
		{msg: "Entering Extended Passive Mode (||6446|)", wantErr: true},
		{msg: "Entering Extended Passive Mode", wantErr: true},
	}
	for _, tt := range tests {
		port, err := parseEPSV(tt.msg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseEPSV(%q) expected error", tt.msg)
			}
			continue
		}
		if err != nil || port != tt.port {
			t.Errorf("parseEPSV(%q) = %d, %v; want %d", tt.msg, port, err, tt.port)
		}
	}
}
