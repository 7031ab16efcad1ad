// Package filestore provides one file-storage interface over the local
// filesystem, Dropbox and Amazon S3.
//
// Callers read and write text or binary objects by path without knowing
// which backend holds them. Remote backends can keep a write-back cache in
// memory so repeated reads and writes cost no round trips until Cleanup
// flushes them.
//
// Basic usage:
//
//	st, _ := filestore.Open(ctx, filestore.Config{Backend: filestore.BackendLocal, BasePath: "data"})
//	defer st.Cleanup(ctx)
//
//	st.Write(ctx, "state.json", filestore.Text("{}"), filestore.Overwrite)
//	st.Write(ctx, "bot.log", filestore.Text("started\n"), filestore.Append)
//
//	c, _ := st.Read(ctx, "state.json", filestore.ReadText)
//	fmt.Println(c.String())
//
// With Dropbox and the cache:
//
//	cfg := filestore.Config{
//	    Backend:  filestore.BackendDropbox,
//	    UseCache: true,
//	    Dropbox:  filestore.DropboxConfig{AppKey: key, AppSecret: secret, RefreshToken: rt},
//	}
//	err := filestore.Run(ctx, cfg, func(st filestore.Storage) error {
//	    return st.Write(ctx, "state.json", filestore.Text("{}"), filestore.Overwrite)
//	})
//
// Run flushes the cache when fn returns, even if it panics.
package filestore
