// Package fat implements reading and writing FAT16 and FAT32 file system
// images, which is useful when generating boot or firmware images for
// embedded devices.
//
// Format lays out an empty volume of an explicitly requested variant on a
// Device. Mount then gives access to directories and files: directories are
// opened or created by name, files are created, written, read back and
// flushed. Metadata held in memory (the allocation table and the FSInfo free
// cluster summary) reaches the Device on Unmount.
//
// Sectors are always 512 bytes. Long file names are stored as VFAT entries
// next to a generated 8.3 alias; name lookups are case-insensitive.
package fat
