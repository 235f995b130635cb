package model

import "testing"

func TestTunnelSpecAddrs(t *testing.T) {
	spec := TunnelSpec{
		LocalPort:   5433,
		RemoteHost:  "db.internal.example.com",
		RemotePort:  3306,
		BastionHost: "bastion.example.com",
		BastionUser: "deploy",
	}

	if got := spec.LocalAddr(); got != "127.0.0.1:5433" {
		t.Fatalf("local addr: %s", got)
	}
	if got := spec.RemoteAddr(); got != "db.internal.example.com:3306" {
		t.Fatalf("remote addr: %s", got)
	}
	if got := spec.BastionTarget(); got != "deploy@bastion.example.com" {
		t.Fatalf("bastion target: %s", got)
	}

	spec.BastionUser = ""
	if got := spec.BastionTarget(); got != "bastion.example.com" {
		t.Fatalf("bare bastion target: %s", got)
	}
}
