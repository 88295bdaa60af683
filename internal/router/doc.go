// Package router is the inbound path for chat and board messages.
//
// Every message is stored (and published) before any bot it mentions is
// run, so observers always see a prompt before its reply. Runs are
// detached from the request, deduplicated per (bot, message) and never
// triggered by messages bots write themselves.
package router
