// Package main hosts the neoarchiver binary.
//
// Commands:
//   - crawl: walks the NeoWs browse catalog from crawl.start_page and archives
//     every resolvable object. Reruns are safe; an aborted crawl logs the page
//     to resume from and exits non-zero.
//   - serve: runs the HTTP API (live lookups, hazardous feed, archive reads,
//     /metrics) until SIGINT or SIGTERM.
//   - lookup <id>: prints one normalized object.
//   - hazardous --start YYYY-MM-DD --end YYYY-MM-DD: prints the hazardous
//     objects in a window of at most seven days, nearest approach first.
//
// Configuration comes from --config (YAML) and NEOWS_* environment variables;
// the API key is also read from NASA_API_KEY.
package main
