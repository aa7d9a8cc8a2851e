// Command avmerge combines a video file and an audio file into one MP4 from
// the command line, and inspects media files with ffprobe. It reads the same
// environment configuration as the API server.
package main
