package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexNameFromPath(t *testing.T) {
	tests := []struct {
		want  IndexName
		paths []string
	}{
		{
			want:  "scheduler.log",
			paths: []string{"scheduler.log", "scheduler.log.1", "k8s_scheduler-afed81.log"},
		},
		{
			want:  "audit/audit.log",
			paths: []string{"audit/audit.log", "audit/audit.log.1"},
		},
		{
			want:  "zuul/merger.log",
			paths: []string{"zuul/merger.log", "zuul/merger.log.2017-11-12"},
		},
		{
			want:  "qemu/instance.log",
			paths: []string{"containers/libvirt/qemu/instance-0000001d.log.txt.gz", "libvirt/qemu/instance-000000ec.log.txt.gz"},
		},
		{
			want:  "builds/job-output",
			paths: []string{"builds/2/job-output.txt.gz", "builds/42/job-output.txt"},
		},
		{
			want:  "pod/uid",
			paths: []string{
				"pod/6339eec3ca2d6a0e36787b10daa5c6513b6ec79933804bd9dcb4c3b59bvwstc.txt",
				"pod/6339eec3cA2d6a0e36787b10daa5c6513b6ec79933804bd9dcb4c3b59bvwstc.txt",
			},
		},
	}
	for _, tt := range tests {
		for _, p := range tt.paths {
			assert.Equal(t, tt.want, IndexNameFromPath(p), "path %s", p)
		}
	}
}

func TestIndexNameTarMember(t *testing.T) {
	assert.Equal(t,
		IndexNameFromPath("logs/app.log"),
		IndexNameFromPath("bad.tar.gz!logs/app.log"))
}

func TestIndexNameRotatedAndCompressed(t *testing.T) {
	name := IndexNameFromPath("var/log/messages")
	for _, p := range []string{
		"var/log/messages.1",
		"var/log/messages.2.gz",
		"var/log/messages-2023-02-01",
	} {
		assert.Equal(t, name, IndexNameFromPath(p), p)
	}
}

func TestIndexNameTotal(t *testing.T) {
	// Degenerate inputs still map to some name.
	for _, p := range []string{"", "/", "12345", "...."} {
		assert.NotEmpty(t, string(IndexNameFromPath(p)), "path %q", p)
	}
}

func TestIndexNameFromSourcePath(t *testing.T) {
	assert.Equal(t,
		IndexNameFromPath("audit/audit.log"),
		IndexNameFromSourcePath("/var/lib/logs/audit/audit.log", len("/var/lib/logs/")))
}
