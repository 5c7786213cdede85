// Package config handles the configuration for lookout.
//
// Configuration is read from a YAML file located at
// ~/.lookout/config.yaml. When the file does not exist, built-in
// defaults are used instead; an invalid file is an error rather than
// a silent fallback.
//
// A complete configuration file looks like this:
//
//	socket:
//	  path: /var/run/lookoutd.socket
//	resolver:
//	  query_timeout: 5s
//	  retries: 2
//	loop:
//	  queue_size: 128
//
// socket.path is the Unix socket the daemon listens on and the CLI
// connects to.
//
// resolver.query_timeout bounds a single DNS exchange with a
// nameserver; it must be at least one second. resolver.retries is the
// number of additional attempts after a failed exchange, capped at 10.
// Nameservers themselves are not configurable: the daemon follows
// /etc/resolv.conf like the rest of the system.
//
// loop.queue_size is the capacity of the event loop's task queue.
// Submissions beyond it block the submitter, never the loop.
package config
