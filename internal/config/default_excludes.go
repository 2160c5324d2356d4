package config

// defaultExcludes are source path patterns that never contain useful log
// text: binary artifacts, fonts, code, machine-generated config, pseudo
// filesystems, and hidden files.
var defaultExcludes = []string{
	// binary data with known extension
	`\.ico$`,
	`\.png$`,
	`\.svg$`,
	`\.tar$`,
	`\.tar\.bzip2$`,
	`\.subunit$`,
	`\.sqlite$`,
	`\.db$`,
	`\.bin$`,
	`\.pcap\.log\.txt$`,
	`\.pkl$`,
	`\.jar$`,
	`\.pyc$`,
	// code
	`\.py$`,
	`\.sh$`,
	// fonts
	`\.eot$`,
	`\.otf$`,
	`\.woff2?$`,
	`\.ttf$`,
	// config
	`\.yaml$`,
	`\.ini$`,
	`\.conf$`,
	// not relevant
	`job-output\.json$`,
	`zuul-manifest\.json$`,
	`\.html$`,
	// binary data with known location
	`cacerts$`,
	`local/creds$`,
	`/authkey$`,
	`mysql/tc\.log\.txt$`,
	// system config
	`/etc/`,
	`/proc/`,
	`/sys/`,
	`/var/lib/selinux/`,
	`/venv/`,
	// hidden files
	`/\.[a-zA-Z0-9]`,
	`^\.[a-zA-Z0-9]`,
}
