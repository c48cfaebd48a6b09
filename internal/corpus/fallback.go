package corpus

// FallbackSource names the built-in passages in chunk metadata.
const FallbackSource = "builtin"

// Fallback returns a small placeholder corpus served when no chunk files exist.
func Fallback() []Collection {
	return []Collection{
		*NewCollection("A Game of Thrones", []Chunk{
			{
				Content: "Jon Snow is the bastard son of Eddard Stark, Lord of Winterfell.",
				Metadata: Metadata{
					BookTitle:  "A Game of Thrones",
					Source:     FallbackSource,
					Chapter:    "Chapter 1",
					ChunkIndex: 0,
				},
			},
			{
				Content: "House Stark rules the North from their castle at Winterfell.",
				Metadata: Metadata{
					BookTitle:  "A Game of Thrones",
					Source:     FallbackSource,
					Chapter:    "Chapter 2",
					ChunkIndex: 1,
				},
			},
		}),
		*NewCollection("A Storm of Swords", []Chunk{
			{
				Content: "The Red Wedding was a massacre of Stark forces orchestrated by Walder Frey and Roose Bolton.",
				Metadata: Metadata{
					BookTitle:  "A Storm of Swords",
					Source:     FallbackSource,
					Chapter:    "Chapter 51",
					ChunkIndex: 0,
				},
			},
		}),
	}
}
