// Package config defines the crawl configuration, its defaults and
// validation rules, and the YAML configuration file loader.
//
// Configuration precedence is flag > file > default: the crawl command
// loads the .topicgrab YAML file (explicit path, current directory, or
// home directory) and then overlays any flags the user set.
//
// A CrawlConfig is immutable once a run starts; the crawl loop and the
// download manager never write to it.
package config
