// Package playlist reads playlist files into ordered path lists that open
// as file scope media lists.
//
// Supported formats are WPL (Windows Media Player's SMIL based format) and
// M3U/M3U8. Entries written with Windows separators or drive-relative
// paths from another machine are matched by file name against the media
// directory when they do not resolve next to the playlist.
package playlist
